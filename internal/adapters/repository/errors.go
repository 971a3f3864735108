package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("job not found")
	ErrExists        = errors.New("job already exists")
	ErrInvalidState  = errors.New("job is not processing")
	ErrUnknownDriver = errors.New("unknown store driver")
)
