package endpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyToken is returned when a template contains "<>".
	ErrEmptyToken = errors.New("template parameter cannot be empty")

	// ErrInvalidType is returned for a type prefix outside string|int|number|bool.
	ErrInvalidType = errors.New("invalid datatype supplied in template parameter")

	// ErrInvalidName is returned when a token has no usable name.
	ErrInvalidName = errors.New("invalid name supplied for template parameter")

	// ErrDuplicateArgument is returned when two tokens slugify to the same name.
	ErrDuplicateArgument = errors.New("duplicate template parameter")

	// ErrPathMismatch is returned when a request path does not fit the template.
	ErrPathMismatch = errors.New("invalid path supplied")

	// ErrMissingArgument is returned when a required argument has no value.
	ErrMissingArgument = errors.New("missing argument")

	// ErrInvalidValue is returned when a value cannot be cast to its declared type.
	ErrInvalidValue = errors.New("invalid value")
)

// ArgumentError names the argument that could not be resolved.
type ArgumentError struct {
	Kind string // "path" or "query"
	Arg  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("Missing %s argument %s", e.Kind, e.Arg)
}

func (e *ArgumentError) Unwrap() error {
	return ErrMissingArgument
}

// CastError reports a value that does not parse as its declared type. Arg
// is empty when the value was cast outside of a parameter.
type CastError struct {
	Arg   string
	Value string
	Type  DataType
}

func (e *CastError) Error() string {
	msg := fmt.Sprintf("Incorrect value %s supplied for type %s", e.Value, e.Type)
	if e.Arg != "" {
		msg += " of argument " + e.Arg
	}
	return msg
}

func (e *CastError) Unwrap() error {
	return ErrInvalidValue
}
