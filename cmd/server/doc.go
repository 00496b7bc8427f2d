// Package main is the entry point for the kernelbox orchestrator.
//
// The orchestrator provisions notebook kernels as containers through the
// docker or podman CLI, waits for them to answer their health probe and
// routes cell executions and endpoint registrations into them. Requests
// arrive on the Redis event bus or as MCP tool calls; progress and results
// are published back on the bus. A gin HTTP API serves the endpoint
// argument parser, the kernel output relay and Prometheus metrics.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
