package kernelserver

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedLanguage is returned for a REPL language the kernel has no interpreter for.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrInterpreterClosed is returned by an interpreter after Close.
	ErrInterpreterClosed = errors.New("interpreter is closed")

	// ErrUnknownToolchain is returned when no toolchain runs a file's extension.
	ErrUnknownToolchain = errors.New("no toolchain for file")

	// ErrEndpointNotFound is returned when an endpoint config or its source file is missing.
	ErrEndpointNotFound = errors.New("endpoint not found")
)

// ParseError is a failed call to the orchestrator's parse API.
type ParseError struct {
	Status  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse API returned %d: %s", e.Status, e.Message)
}
