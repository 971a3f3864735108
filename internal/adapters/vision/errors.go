package vision

import "errors"

// Sentinel kinds for vision errors.
var (
	ErrMediaUnsupported = errors.New("media not supported by this build")
	ErrUnknownType      = errors.New("unknown file type")
	ErrManifest         = errors.New("invalid manifest")
	ErrDetector         = errors.New("detector failed")
	ErrDecode           = errors.New("cannot decode media")
)
