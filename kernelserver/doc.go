// Package kernelserver implements the HTTP server that runs inside every
// kernel container.
//
// The server answers the orchestrator's readiness probe, runs REPL snippets
// against a persistent Interpreter, stores and executes files under a root
// directory and serves user defined endpoints. Shell cells run in the
// background and stream their output through the stream package; all other
// REPL results are published as a single code_result event.
//
// Usage:
//
//	interp, err := kernelserver.NewInterpreter(logger, "python", "")
//	server := kernelserver.NewServer(logger, sink, kernelserver.NewParseClient(serverURI, nil),
//	    kernelserver.WithInterpreter("python", interp))
//	http.ListenAndServe(":1111", server.Handler())
package kernelserver
