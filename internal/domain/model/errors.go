package model

import "errors"

// ErrMalformedDetection is returned when a detection cannot be decoded.
var ErrMalformedDetection = errors.New("malformed detection")
