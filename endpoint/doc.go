// Package endpoint compiles declarative path and query templates into typed
// argument extractors.
//
// A template embeds bracketed tokens of the form <[type:]name[=default]>,
// for example "/items/<int:id=5>" or "<string:q>&<bool:verbose=false>".
// Compile turns the tokens into parameter descriptors, BuildMatcher turns a
// path template into an anchored regular expression, and HydratePath and
// HydrateQuery resolve concrete values from a live request.
//
// Usage:
//
//	params, err := endpoint.Compile("/items/<int:id=5>")
//	params, err = endpoint.HydratePath("/items/<int:id=5>", params, "/items/10")
//	fmt.Println(params[0].Value) // 10
package endpoint
