package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/isdmx/kernelbox/endpoint"
	"github.com/isdmx/kernelbox/events"
	"github.com/isdmx/kernelbox/runtimes"
)

// Cell types.
const (
	CellInteractive = "interactive"
	CellFile        = "file"
)

// CellRequest asks for a cell to be executed in a kernel.
type CellRequest struct {
	CellID   string `json:"cellId" validate:"required"`
	KernelID string `json:"kernelId" validate:"required"`
	Code     string `json:"code"`
	Language string `json:"language"`
	CellType string `json:"cellType" validate:"omitempty,oneof=interactive file"`
	FilePath string `json:"filePath" validate:"required_if=CellType file"`
}

// EndpointRequest asks for an endpoint to be registered in a kernel.
type EndpointRequest struct {
	CellID   string          `json:"cellId"`
	KernelID string          `json:"kernelId" validate:"required"`
	Config   endpoint.Config `json:"config"`
	FilePath string          `json:"filePath" validate:"required"`
}

// Metrics receives orchestration measurements.
type Metrics interface {
	KernelCreated(image string, err error)
	KernelStatus(status string, waited time.Duration)
	CellRun(cellType string, err error)
}

type nopMetrics struct{}

func (nopMetrics) KernelCreated(string, error)         {}
func (nopMetrics) KernelStatus(string, time.Duration) {}
func (nopMetrics) CellRun(string, error)               {}

// KernelState is the last known status of a kernel.
type KernelState struct {
	ID        string    `json:"id"`
	Image     string    `json:"image"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Orchestrator provisions kernels and routes cell executions into them.
type Orchestrator struct {
	logger   *zap.Logger
	registry *Registry
	poller   *Poller
	client   Client
	sink     events.Sink
	runtimes *runtimes.Loader
	metrics  Metrics
	validate *validator.Validate
	locks    *nameLocks

	// base outlives individual requests; pollers run under it.
	base context.Context

	mu     sync.RWMutex
	states map[string]KernelState
}

// OrchestratorOption defines a functional option for Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithRuntimes makes kernel requests match an installed runtime descriptor
func WithRuntimes(loader *runtimes.Loader) OrchestratorOption {
	return func(o *Orchestrator) {
		o.runtimes = loader
	}
}

// WithMetrics sets the Metrics receiver
func WithMetrics(metrics Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithBaseContext sets the context background pollers run under
func WithBaseContext(ctx context.Context) OrchestratorOption {
	return func(o *Orchestrator) {
		o.base = ctx
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(logger *zap.Logger, registry *Registry, poller *Poller, client Client, sink events.Sink, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		logger:   logger.Named("orchestrator"),
		registry: registry,
		poller:   poller,
		client:   client,
		sink:     sink,
		metrics:  nopMetrics{},
		validate: validator.New(),
		locks:    newNameLocks(),
		base:     context.Background(),
		states:   make(map[string]KernelState),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// CreateKernel provisions the kernel described by def and starts watching it.
// Failures are published to channel as a log line and an error status, and
// returned. On success runtime_created is published and readiness events
// follow asynchronously.
func (o *Orchestrator) CreateKernel(ctx context.Context, channel string, def Definition) (*events.RuntimeCreated, error) {
	if err := o.validate.Struct(def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	id := ContainerName(def.NotebookID, def.Name)
	logger := o.logger.With(zap.String("kernel", id), zap.String("channel", channel))
	logger.Info("creating kernel", zap.String("image", def.Image), zap.String("version", def.Tag()))

	fail := func(err error) (*events.RuntimeCreated, error) {
		logger.Error("kernel creation failed", zap.Error(err))
		o.setStatus(id, def.Image, StatusError)
		o.metrics.KernelCreated(def.Image, err)
		o.publish(ctx, events.NewRuntimeLog(channel, id, []string{"ERROR: " + err.Error()}))
		o.publish(ctx, events.NewRuntimeStatus(channel, id, string(StatusError)))
		return nil, err
	}

	if o.runtimes != nil && len(o.runtimes.Configs()) > 0 {
		matched, err := o.runtimes.GetMatchingRuntime(runtimes.Request{
			Name:      def.Name,
			Image:     def.Image,
			Tag:       def.Tag(),
			Languages: def.SupportedLanguages,
		})
		if err != nil {
			return fail(err)
		}
		def.SupportedLanguages = matched.Languages
	}

	creator, err := o.registry.Resolve(def.Image)
	if err != nil {
		return fail(err)
	}

	o.setStatus(id, def.Image, StatusProvisioning)
	release := o.locks.lock(id)
	handle, err := creator.Create(ctx, def)
	release()
	if err != nil {
		return fail(err)
	}
	o.metrics.KernelCreated(def.Image, nil)

	created := events.RuntimeCreated{
		ID:                 id,
		Name:               def.Name,
		Version:            def.Version,
		Value:              id,
		SupportedLanguages: def.SupportedLanguages,
		Image:              def.Image,
		NotebookID:         def.NotebookID,
	}
	o.publish(ctx, events.NewRuntimeCreated(channel, created))

	o.setStatus(id, def.Image, StatusWaitingReady)
	logger.Info("waiting for kernel to be ready")
	watch := o.poller.Watch(o.base, Target{ID: handle.ID, Host: handle.Name})
	go o.relay(channel, id, def.Image, watch)

	return &created, nil
}

func (o *Orchestrator) relay(channel, id, image string, watch <-chan Event) {
	start := time.Now()
	for ev := range watch {
		switch ev.Kind {
		case EventLog:
			o.publish(o.base, events.NewRuntimeLog(channel, id, ev.Lines))
		case EventStatus:
			o.setStatus(id, image, ev.Status)
			o.metrics.KernelStatus(string(ev.Status), time.Since(start))
			o.publish(o.base, events.NewRuntimeStatus(channel, id, string(ev.Status)))
		}
	}
}

// RunCell routes a cell to its kernel. Interactive cells are posted to the
// kernel's REPL and answer asynchronously. File cells are stored when they
// carry code, executed, and their output published as code_result. An
// unreachable kernel is reported to the channel as a code_result error.
func (o *Orchestrator) RunCell(ctx context.Context, channel string, req CellRequest) error {
	if err := o.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	err := o.runCell(ctx, channel, req)
	o.metrics.CellRun(req.CellType, err)

	if errors.Is(err, ErrKernelUnreachable) {
		o.logger.Warn("kernel unreachable", zap.String("kernel", req.KernelID), zap.Error(err))
		o.publish(ctx, events.NewCodeResult(channel, events.CodeResult{
			ID:     req.CellID,
			Output: "",
			Error:  fmt.Sprintf("Cannot find kernel %s", req.KernelID),
		}))
		return nil
	}
	if err != nil {
		o.publish(ctx, events.NewCodeResult(channel, events.CodeResult{ID: req.CellID, Output: "", Error: err.Error()}))
	}
	return err
}

func (o *Orchestrator) runCell(ctx context.Context, channel string, req CellRequest) error {
	if req.CellType != CellFile {
		return o.client.Repl(ctx, req.KernelID, req.Language, ReplRequest{
			Code:    req.Code,
			Channel: channel,
			CellID:  req.CellID,
		})
	}

	path := req.FilePath
	if req.Code != "" {
		stored, err := o.client.WriteFile(ctx, req.KernelID, FileWrite{
			Content:  req.Code,
			FilePath: req.FilePath,
			CellID:   req.CellID,
			Channel:  channel,
		})
		if err != nil {
			return err
		}
		path = stored
	}

	result, err := o.client.RunFile(ctx, req.KernelID, path)
	if err != nil {
		return err
	}
	o.publish(ctx, events.NewCodeResult(channel, events.CodeResult{
		ID:     req.CellID,
		Output: result.Output,
		Error:  result.Error,
	}))
	return nil
}

// CreateEndpoint registers an endpoint in a kernel.
func (o *Orchestrator) CreateEndpoint(ctx context.Context, req EndpointRequest) error {
	if err := o.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, err := endpoint.Compile(req.Config.Path); err != nil {
		return fmt.Errorf("%w: path template: %v", ErrInvalidRequest, err)
	}
	if _, err := endpoint.Compile(req.Config.Query); err != nil {
		return fmt.Errorf("%w: query template: %v", ErrInvalidRequest, err)
	}

	o.logger.Info("creating endpoint",
		zap.String("kernel", req.KernelID),
		zap.String("endpoint", req.Config.Name))
	return o.client.CreateEndpoint(ctx, req.KernelID, EndpointCreate{Config: req.Config, FilePath: req.FilePath})
}

// Dispatch handles an inbound bus request.
func (o *Orchestrator) Dispatch(ctx context.Context, req events.Request) error {
	var err error
	switch req.Type {
	case events.RequestCreateKernel:
		var def Definition
		if err = json.Unmarshal(req.Payload, &def); err == nil {
			_, err = o.CreateKernel(ctx, req.Channel, def)
		}
	case events.RequestCodeRun:
		var cell CellRequest
		if err = json.Unmarshal(req.Payload, &cell); err == nil {
			err = o.RunCell(ctx, req.Channel, cell)
		}
	case events.RequestEndpointCreate:
		var ep EndpointRequest
		if err = json.Unmarshal(req.Payload, &ep); err == nil {
			err = o.CreateEndpoint(ctx, ep)
		}
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownRequest, req.Type)
	}

	if err != nil {
		o.logger.Warn("request failed",
			zap.String("type", req.Type),
			zap.String("channel", req.Channel),
			zap.Error(err))
	}
	return err
}

// Kernels returns the known kernels sorted by id.
func (o *Orchestrator) Kernels() []KernelState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]KernelState, 0, len(o.states))
	for _, s := range o.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Kernel returns the state of one kernel.
func (o *Orchestrator) Kernel(id string) (KernelState, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.states[id]
	return s, ok
}

func (o *Orchestrator) setStatus(id, image string, status Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states[id] = KernelState{ID: id, Image: image, Status: status, UpdatedAt: time.Now()}
}

func (o *Orchestrator) publish(ctx context.Context, event events.Event) {
	if err := o.sink.Publish(ctx, event); err != nil {
		o.logger.Error("failed to publish event",
			zap.String("event", event.Name),
			zap.String("room", event.Room),
			zap.Error(err))
	}
}
