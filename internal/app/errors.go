package service

import "github.com/okian/platecount/internal/domain/types"

// Sentinel kinds for service errors.
var (
	ErrNotStarted         = types.ErrNotStarted
	ErrNoFile             = types.ErrNoFile
	ErrNoFilename         = types.ErrNoFilename
	ErrUnsupportedType    = types.ErrUnsupportedType
	ErrTooLarge           = types.ErrTooLarge
	ErrBackpressure       = types.ErrBackpressure
	ErrJobNotFound        = types.ErrJobNotFound
	ErrNotCompleted       = types.ErrNotCompleted
	ErrOutputNotFound     = types.ErrOutputNotFound
	ErrStreamsUnsupported = types.ErrStreamsUnsupported
	ErrInvalidStreamURL   = types.ErrInvalidStreamURL
)
