// Package config provides application configuration management.
//
// The config package loads and validates the configuration of both kernelbox
// binaries from an optional config.yaml (in "." or "./config") with
// KERNELBOX_* environment overrides. New returns the orchestrator settings:
// MCP transport, HTTP API, sandbox backend, kernel start-up and the Redis
// event bus. NewKernel returns the settings of the execution server that
// runs inside each kernel container, which additionally honours the
// SERVER_URI, KERNEL_INTERPRETER, REDIS_HOST and REDIS_PORT variables set by
// the orchestrator.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server transport: %s\n", cfg.Server.Transport)
package config
