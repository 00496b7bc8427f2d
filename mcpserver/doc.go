// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the kernel orchestrator as MCP tools using
// the mark3labs/mcp-go library: create_kernel, run_cell, create_endpoint and
// kernel_status. Kernel start-up progress and cell output are asynchronous;
// tools answer with the channel the corresponding events are published to,
// generating one when the caller does not name it.
//
// The server supports stdio and streamable HTTP transports as configured by
// server.transport.
//
// Usage:
//
//	server, err := mcpserver.New(cfg, logger, orchestrator)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
