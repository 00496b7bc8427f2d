package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrImageNotFound is returned when an image is absent even after a pull.
	ErrImageNotFound = errors.New("image not found")
	// ErrContainerNotFound is returned by Inspect for unknown containers.
	ErrContainerNotFound = errors.New("container not found")
	// ErrUnsupportedBackend is returned by NewRuntime for unknown backends.
	ErrUnsupportedBackend = errors.New("unsupported backend")
)

// CommandError reports a container CLI invocation that exited non-zero.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited with %d: %s", strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Stderr))
}

func isNotFound(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	msg := strings.ToLower(cmdErr.Stderr)
	return strings.Contains(msg, "no such") ||
		strings.Contains(msg, "not known") ||
		strings.Contains(msg, "not found")
}
