package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownImage is returned when no creator is registered for an image.
	ErrUnknownImage = errors.New("cannot find a creator for image")
	// ErrKernelUnreachable is returned when a kernel cannot be connected to.
	ErrKernelUnreachable = errors.New("kernel unreachable")
	// ErrInvalidRequest is returned for requests that fail validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnknownRequest is returned for inbound request types nothing handles.
	ErrUnknownRequest = errors.New("unknown request type")
)

// ResponseError reports a non-2xx answer from a kernel.
type ResponseError struct {
	Code int
	Body string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("kernel answered %d: %s", e.Code, e.Body)
}
