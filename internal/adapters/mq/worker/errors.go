package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	// ErrPanic wraps a recovered panic.
	ErrPanic = errors.New("job panicked")
	// ErrInternal marks failures of the service itself rather than of the
	// job's input.
	ErrInternal = errors.New("internal error")
)
