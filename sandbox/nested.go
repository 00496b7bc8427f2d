package sandbox

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const cgroupPath = "/proc/1/cgroup"

// Host reports the container the orchestrator itself runs in, if any.
type Host interface {
	Self(ctx context.Context) (*ContainerDetails, error)
}

// HostIntrospector detects whether the orchestrator runs inside a container
// and, if so, which one. The result is computed once and cached.
type HostIntrospector struct {
	logger   *zap.Logger
	runtime  ContainerRuntime
	fs       FileSystem
	getenv   func(string) string
	hostname func() (string, error)

	once    sync.Once
	self    *ContainerDetails
	selfErr error
}

// HostIntrospectorOption defines a functional option for HostIntrospector
type HostIntrospectorOption func(*HostIntrospector)

// WithFileSystem sets the FileSystem used to read cgroup and marker files
func WithFileSystem(fs FileSystem) HostIntrospectorOption {
	return func(h *HostIntrospector) {
		h.fs = fs
	}
}

// WithEnv sets the environment lookup used for the container marker variable
func WithEnv(getenv func(string) string) HostIntrospectorOption {
	return func(h *HostIntrospector) {
		h.getenv = getenv
	}
}

// WithHostname sets the hostname source used when the cgroup carries no id
func WithHostname(hostname func() (string, error)) HostIntrospectorOption {
	return func(h *HostIntrospector) {
		h.hostname = hostname
	}
}

// NewHostIntrospector creates a HostIntrospector backed by the real file system.
func NewHostIntrospector(logger *zap.Logger, runtime ContainerRuntime, opts ...HostIntrospectorOption) *HostIntrospector {
	h := &HostIntrospector{
		logger:   logger.Named("host"),
		runtime:  runtime,
		fs:       &RealFileSystem{},
		getenv:   os.Getenv,
		hostname: os.Hostname,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Self returns the orchestrator's own container, or nil when it runs on bare
// metal or its container cannot be found by the runtime.
func (h *HostIntrospector) Self(ctx context.Context) (*ContainerDetails, error) {
	h.once.Do(func() {
		h.self, h.selfErr = h.lookup(ctx)
	})
	return h.self, h.selfErr
}

func (h *HostIntrospector) lookup(ctx context.Context) (*ContainerDetails, error) {
	cgroup := h.readCgroup()
	if !h.nested(cgroup) {
		return nil, nil
	}

	id := containerID(cgroup)
	if id == "" {
		name, err := h.hostname()
		if err != nil {
			h.logger.Warn("nested container detected but no id available", zap.Error(err))
			return nil, nil
		}
		id = name
	}

	details, err := h.runtime.Inspect(ctx, id)
	if errors.Is(err, ErrContainerNotFound) {
		h.logger.Info("nested container id not known to runtime", zap.String("id", id))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	h.logger.Info("running inside container",
		zap.String("id", details.ID),
		zap.String("network", details.NetworkMode))
	return details, nil
}

func (h *HostIntrospector) readCgroup() string {
	data, err := h.fs.ReadFile(cgroupPath)
	if err != nil {
		return ""
	}
	return strings.ToLower(string(data))
}

func (h *HostIntrospector) nested(cgroup string) bool {
	if strings.Contains(cgroup, "docker") || strings.Contains(cgroup, "/lxc/") || strings.Contains(cgroup, "libpod") {
		return true
	}
	for _, marker := range []string{"/.dockerenv", "/.dockerinit"} {
		if ok, _ := h.fs.FileExists(marker); ok {
			return true
		}
	}
	return h.getenv("container") != ""
}

// containerID takes the last path segment of the first cgroup line.
func containerID(cgroup string) string {
	first, _, _ := strings.Cut(cgroup, "\n")
	idx := strings.LastIndex(first, "/")
	if idx < 0 {
		return ""
	}
	id := strings.TrimSpace(first[idx+1:])
	id = strings.TrimPrefix(id, "docker-")
	id = strings.TrimSuffix(id, ".scope")
	return id
}

// HostPath translates a path inside the orchestrator's container to the
// matching path on the host, using the bind mount with the longest
// destination prefix. Paths outside any bind mount are returned unchanged.
func HostPath(self *ContainerDetails, p string) string {
	if self == nil {
		return p
	}

	clean := path.Clean(p)
	var best *Mount
	for i := range self.Mounts {
		m := &self.Mounts[i]
		if m.Type != "bind" {
			continue
		}
		dest := path.Clean(m.Destination)
		if clean != dest && !strings.HasPrefix(clean, strings.TrimSuffix(dest, "/")+"/") {
			continue
		}
		if best == nil || len(dest) > len(path.Clean(best.Destination)) {
			best = m
		}
	}
	if best == nil {
		return p
	}
	rel := strings.TrimPrefix(clean, path.Clean(best.Destination))
	return path.Join(best.Source, rel)
}
