package types

import "errors"

// Sentinel kinds for job service errors. Transports map them to their own
// status codes.
var (
	ErrNotStarted         = errors.New("service not started")
	ErrNoFile             = errors.New("no file provided")
	ErrNoFilename         = errors.New("no file selected")
	ErrUnsupportedType    = errors.New("file type not allowed")
	ErrTooLarge           = errors.New("file too large")
	ErrBackpressure       = errors.New("job queue is full")
	ErrJobNotFound        = errors.New("job not found")
	ErrNotCompleted       = errors.New("job not completed")
	ErrOutputNotFound     = errors.New("file not found")
	ErrStreamsUnsupported = errors.New("stream processing is not available in this build")
	ErrInvalidStreamURL   = errors.New("invalid stream url")
)
