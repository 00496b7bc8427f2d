// Package httpapi serves the orchestrator's HTTP surface: the endpoint
// argument parse API called by kernels, the cell output relay, kernel status,
// health and Prometheus metrics.
//
// Usage:
//
//	handlers := httpapi.New(logger, bus, orchestrator,
//	    httpapi.WithGatherer(registry),
//	    httpapi.WithRequestRecorder(collector))
//	srv := &http.Server{Addr: ":8080", Handler: handlers.Router()}
package httpapi
