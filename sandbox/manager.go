package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Manager ensures that named containers exist and are running.
type Manager struct {
	logger  *zap.Logger
	runtime ContainerRuntime
	host    Host
}

// ManagerOption defines a functional option for Manager
type ManagerOption func(*Manager)

// WithHost sets the Host used to detect nesting
func WithHost(host Host) ManagerOption {
	return func(m *Manager) {
		m.host = host
	}
}

// NewManager creates a Manager. Without WithHost, nesting is detected with a
// HostIntrospector over the same runtime.
func NewManager(logger *zap.Logger, runtime ContainerRuntime, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:  logger.Named("containers"),
		runtime: runtime,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.host == nil {
		m.host = NewHostIntrospector(logger, runtime)
	}

	return m
}

// Runtime returns the underlying container runtime.
func (m *Manager) Runtime() ContainerRuntime {
	return m.runtime
}

// EnsureRunning looks up the container with exactly this name, starting it if
// it has exited. It returns nil when no such container exists.
func (m *Manager) EnsureRunning(ctx context.Context, name string) (*Handle, error) {
	candidates, err := m.runtime.List(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	for _, c := range candidates {
		if c.Name != name {
			continue
		}

		handle := c
		if handle.Status == StatusExited {
			m.logger.Info("starting exited container", zap.String("name", name))
			if err := m.runtime.Start(ctx, handle.ID); err != nil {
				return nil, fmt.Errorf("failed to start container %s: %w", name, err)
			}
			handle.Status = StatusRunning
		}
		return &handle, nil
	}

	return nil, nil
}

// Create returns the running container named spec.Name, creating it when it
// does not exist. The image is pulled when absent. When the orchestrator runs
// inside a container, bind-mount sources are translated to host paths and the
// new container joins the orchestrator's network.
func (m *Manager) Create(ctx context.Context, spec ContainerSpec) (*Handle, error) {
	existing, err := m.EnsureRunning(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		m.logger.Debug("reusing container", zap.String("name", spec.Name))
		return existing, nil
	}

	ref := spec.ImageRef()
	if err := m.ensureImage(ctx, ref); err != nil {
		return nil, err
	}

	self, err := m.host.Self(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect host container: %w", err)
	}

	run := RunSpec{
		Name:    spec.Name,
		Image:   ref,
		Command: spec.Command,
		Env:     spec.Env,
	}
	for _, mount := range spec.Mounts {
		mount.Source = HostPath(self, mount.Source)
		run.Mounts = append(run.Mounts, mount)
	}
	if self != nil {
		run.Network = self.NetworkMode
	}

	m.logger.Info("creating container",
		zap.String("name", spec.Name),
		zap.String("image", ref),
		zap.String("network", run.Network))

	handle, err := m.runtime.Run(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to run container %s: %w", spec.Name, err)
	}
	return handle, nil
}

func (m *Manager) ensureImage(ctx context.Context, ref string) error {
	exists, err := m.runtime.ImageExists(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	if exists {
		return nil
	}

	pullErr := m.runtime.Pull(ctx, ref)
	if pullErr != nil {
		m.logger.Warn("image pull failed", zap.String("image", ref), zap.Error(pullErr))
	}

	exists, err = m.runtime.ImageExists(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	if !exists {
		if pullErr != nil {
			return fmt.Errorf("%w: %s: %w", ErrImageNotFound, ref, pullErr)
		}
		return fmt.Errorf("%w: %s", ErrImageNotFound, ref)
	}
	return nil
}
