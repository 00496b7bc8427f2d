package kernel

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/isdmx/kernelbox/sandbox"
)

// Creator provisions the container(s) of a kernel and returns the kernel's
// main container.
type Creator interface {
	Create(ctx context.Context, def Definition) (*sandbox.Handle, error)
}

// Provisioner is the container lifecycle capability creators rely on.
type Provisioner interface {
	Create(ctx context.Context, spec sandbox.ContainerSpec) (*sandbox.Handle, error)
}

// Registry maps image names to creators.
type Registry struct {
	mu       sync.RWMutex
	creators map[string]Creator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{creators: make(map[string]Creator)}
}

// Register adds or replaces the creator for image.
func (r *Registry) Register(image string, creator Creator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creators[image] = creator
}

// Resolve returns the creator for image.
func (r *Registry) Resolve(image string) (Creator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	creator, ok := r.creators[image]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownImage, image)
	}
	return creator, nil
}

// Images returns the registered image names, sorted.
func (r *Registry) Images() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	images := make([]string, 0, len(r.creators))
	for image := range r.creators {
		images = append(images, image)
	}
	sort.Strings(images)
	return images
}

// CreatorOptions holds what every creator needs to start a kernel.
type CreatorOptions struct {
	// BootstrapRoot holds one folder per kernel flavour with a start.sh.
	BootstrapRoot string
	// ServerURI is how kernels reach the orchestrator.
	ServerURI string
	// MainImage is the kernel image of multi-process kernels.
	MainImage string
	// Env is added to every kernel container.
	Env map[string]string
}

const (
	bootstrapMount   = "/opt/current"
	defaultMainImage = "python:3.5"
	auxStorePort     = "6379"
)

var startCommand = []string{"/bin/sh", bootstrapMount + "/start.sh"}

func (o CreatorOptions) env(interpreter string, extra map[string]string) map[string]string {
	env := make(map[string]string, len(o.Env)+len(extra)+2)
	for k, v := range o.Env {
		env[k] = v
	}
	for k, v := range extra {
		env[k] = v
	}
	env["SERVER_URI"] = o.ServerURI
	env["KERNEL_INTERPRETER"] = interpreter
	return env
}

func (o CreatorOptions) bootstrap(folder string) sandbox.Mount {
	return sandbox.Mount{
		Type:        "bind",
		Source:      filepath.Join(o.BootstrapRoot, folder),
		Destination: bootstrapMount,
		ReadOnly:    true,
	}
}

// SingleProcessCreator runs a kernel in a single container of the requested
// image.
type SingleProcessCreator struct {
	provisioner Provisioner
	opts        CreatorOptions
}

// NewSingleProcessCreator creates a SingleProcessCreator.
func NewSingleProcessCreator(provisioner Provisioner, opts CreatorOptions) *SingleProcessCreator {
	return &SingleProcessCreator{provisioner: provisioner, opts: opts}
}

// Create ensures the kernel container exists and is running.
func (c *SingleProcessCreator) Create(ctx context.Context, def Definition) (*sandbox.Handle, error) {
	return c.provisioner.Create(ctx, sandbox.ContainerSpec{
		Name:    ContainerName(def.NotebookID, def.Name),
		Image:   def.Image,
		Tag:     def.Tag(),
		Command: startCommand,
		Env:     c.opts.env(def.Image, nil),
		Mounts:  []sandbox.Mount{c.opts.bootstrap(bootstrapFolder(def.Image, def.Version))},
	})
}

// MultiProcessCreator runs the requested image as an auxiliary store
// container and the kernel itself in a separate container that talks to it.
type MultiProcessCreator struct {
	provisioner Provisioner
	opts        CreatorOptions
}

// NewMultiProcessCreator creates a MultiProcessCreator.
func NewMultiProcessCreator(provisioner Provisioner, opts CreatorOptions) *MultiProcessCreator {
	if opts.MainImage == "" {
		opts.MainImage = defaultMainImage
	}
	return &MultiProcessCreator{provisioner: provisioner, opts: opts}
}

// Create ensures the auxiliary container and then the kernel container.
func (c *MultiProcessCreator) Create(ctx context.Context, def Definition) (*sandbox.Handle, error) {
	name := ContainerName(def.NotebookID, def.Name)
	aux := AuxContainerName(name)

	if _, err := c.provisioner.Create(ctx, sandbox.ContainerSpec{
		Name:  aux,
		Image: def.Image,
		Tag:   def.Tag(),
	}); err != nil {
		return nil, fmt.Errorf("failed to provision %s: %w", aux, err)
	}

	image, tag := splitRef(c.opts.MainImage)
	return c.provisioner.Create(ctx, sandbox.ContainerSpec{
		Name:    name,
		Image:   image,
		Tag:     tag,
		Command: startCommand,
		Env: c.opts.env(def.Image, map[string]string{
			"REDIS_HOST": aux,
			"REDIS_PORT": auxStorePort,
		}),
		Mounts: []sandbox.Mount{c.opts.bootstrap(def.Image)},
	})
}

func splitRef(ref string) (image, tag string) {
	idx := strings.LastIndex(ref, ":")
	if idx < 0 || strings.Contains(ref[idx:], "/") {
		return ref, ""
	}
	return ref[:idx], ref[idx+1:]
}

// NewDefaultRegistry registers the built-in kernels: python runs in a single
// container, redis runs a store container plus a kernel container.
func NewDefaultRegistry(provisioner Provisioner, opts CreatorOptions) *Registry {
	registry := NewRegistry()
	registry.Register("python", NewSingleProcessCreator(provisioner, opts))
	registry.Register("redis", NewMultiProcessCreator(provisioner, opts))
	return registry
}
