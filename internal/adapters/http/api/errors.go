package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors. Their text is what clients see.
//
//nolint:stylecheck,revive // capitalized client-facing messages
var (
	ErrBadRequest     = errors.New("bad request")
	ErrNoFile         = errors.New("No file provided")
	ErrNoSelection    = errors.New("No file selected")
	ErrFileType       = errors.New("File type not allowed")
	ErrTooLarge       = errors.New("File too large")
	ErrBackpressure   = errors.New("Server busy, try again later")
	ErrJobNotFound    = errors.New("Job not found")
	ErrFileNotFound   = errors.New("File not found")
	ErrNotCompleted   = errors.New("Job not completed")
	ErrNotImplemented = errors.New("Stream processing is not available")
	ErrUploadFailed   = errors.New("Upload failed")
	ErrInternal       = errors.New("internal error")
)

// Error records the operation that failed, the kind reported to the client
// and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind returns an error of kind raised by op and caused by err.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap returns an internal error raised by op and caused by err.
func Wrap(op string, err error) error {
	return &Error{Op: op, Kind: ErrInternal, Err: err}
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Message()
}

// Message is the text reported to the client.
func (e *Error) Message() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
