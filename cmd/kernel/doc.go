// Package main is the entry point of the execution server that runs inside
// every kernel container.
//
// The server listens on port 1111 and serves the REPL, file and endpoint
// routes the orchestrator calls. Results are published to the Redis event
// bus when bus.addr is configured, otherwise they are relayed to the
// orchestrator's HTTP API at SERVER_URI.
package main
