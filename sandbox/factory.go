package sandbox

import (
	"fmt"

	"go.uber.org/zap"
)

// NewRuntime creates the container runtime for the configured backend
func NewRuntime(logger *zap.Logger, backend string, opts ...CLIRuntimeOption) (*CLIRuntime, error) {
	switch backend {
	case "docker":
		return NewDockerRuntime(logger, opts...), nil
	case "podman":
		return NewPodmanRuntime(logger, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, backend)
	}
}
