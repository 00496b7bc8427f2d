package runtimes

import "errors"

var (
	// ErrNoInstallDir is returned when no installation folder is configured.
	ErrNoInstallDir = errors.New("runtime installation folder is not set")
	// ErrInvalidConfig is returned for descriptors that parse but do not validate.
	ErrInvalidConfig = errors.New("invalid runtime config")
	// ErrUnresolvedRuntime is returned when no descriptor matches a request.
	ErrUnresolvedRuntime = errors.New("no matching runtime")
)
