// Package types contains the request and result shapes shared by the job
// service and its transports.
package types

import (
	"io"
	"time"
)

// Upload is a file submitted for processing.
type Upload struct {
	Filename string
	Body     io.Reader
}

// SubmitResult describes an accepted submission.
type SubmitResult struct {
	JobID     string
	Filename  string
	Status    string
	Duplicate bool
}

// Health is the liveness summary of the job service.
type Health struct {
	Active    int
	Completed int
	Timestamp time.Time
}
