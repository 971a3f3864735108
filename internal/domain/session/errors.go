package session

import "errors"

// ErrSource wraps failures reported by a frame source.
var ErrSource = errors.New("source failed")
