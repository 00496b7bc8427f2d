package events

import (
	"context"
	"encoding/json"
)

// Namespaces events are published under.
const (
	NamespaceCells   = "/cells"
	NamespaceKernels = "/kernels"
)

// Event names.
const (
	CodeResultEvent     = "code_result"
	RuntimeLogEvent     = "runtime_log"
	RuntimeStatusEvent  = "runtime_status"
	RuntimeCreatedEvent = "runtime_created"
)

// Event is a single message addressed to a room within a namespace.
type Event struct {
	Name      string `json:"event"`
	Namespace string `json:"namespace"`
	Room      string `json:"room,omitempty"`
	Data      any    `json:"data"`
}

// Sink publishes events.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// CodeResult is the payload of code_result. Output is a string for most
// kernels and a list for multi-value protocol replies.
type CodeResult struct {
	ID         string `json:"id"`
	Output     any    `json:"output"`
	Error      string `json:"error"`
	StreamType string `json:"streamType,omitempty"`
}

// RuntimeLog is the payload of runtime_log.
type RuntimeLog struct {
	ID   string   `json:"id"`
	Logs []string `json:"logs"`
}

// RuntimeStatus is the payload of runtime_status.
type RuntimeStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RuntimeCreated is the payload of runtime_created.
type RuntimeCreated struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Version            string   `json:"version"`
	Value              string   `json:"value"`
	SupportedLanguages []string `json:"supportedLanguages"`
	Image              string   `json:"image"`
	NotebookID         string   `json:"notebookId"`
}

// NewCodeResult builds a code_result event for room.
func NewCodeResult(room string, result CodeResult) Event {
	return Event{Name: CodeResultEvent, Namespace: NamespaceCells, Room: room, Data: result}
}

// NewRuntimeLog builds a runtime_log event for room.
func NewRuntimeLog(room, id string, logs []string) Event {
	return Event{Name: RuntimeLogEvent, Namespace: NamespaceKernels, Room: room, Data: RuntimeLog{ID: id, Logs: logs}}
}

// NewRuntimeStatus builds a runtime_status event for room.
func NewRuntimeStatus(room, id, status string) Event {
	return Event{Name: RuntimeStatusEvent, Namespace: NamespaceKernels, Room: room, Data: RuntimeStatus{ID: id, Status: status}}
}

// NewRuntimeCreated builds a runtime_created event for room.
func NewRuntimeCreated(room string, created RuntimeCreated) Event {
	return Event{Name: RuntimeCreatedEvent, Namespace: NamespaceKernels, Room: room, Data: created}
}

// Request types accepted on the inbound channel.
const (
	RequestCreateKernel   = "create_kernel"
	RequestCodeRun        = "code_run"
	RequestEndpointCreate = "endpoint_create"
)

// Request is an inbound client request. Channel is the requester's room.
type Request struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// Handler processes inbound requests.
type Handler func(ctx context.Context, req Request)
