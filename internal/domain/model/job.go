package model

import "time"

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job states. Processing is the only non-terminal state.
const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusTimeout    JobStatus = "timeout"
	StatusError      JobStatus = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout, StatusError:
		return true
	}
	return false
}

// Row is one line of the vehicle log.
type Row struct {
	Timestamp    string    `json:"timestamp"`
	Plates       string    `json:"plates"`
	VehicleCount int       `json:"vehicle_count"`
	Condition    Condition `json:"condition"`
}

// Job tracks one uploaded file or stream through processing.
type Job struct {
	ID          string
	Filename    string
	InputPath   string
	URL         string
	Digest      string
	Kind        SourceKind
	Status      JobStatus
	Progress    string
	StartedAt   time.Time
	CompletedAt time.Time

	Rows          []Row
	Plates        []string
	TotalVehicles int
	Artifacts     Artifacts
	Error         string
}

// Result is what a finished job reports.
type Result struct {
	Status JobStatus
	// Kind, when set, replaces the kind guessed at submission.
	Kind          SourceKind
	Rows          []Row
	Plates        []string
	TotalVehicles int
	Artifacts     Artifacts
	Error         string
	CompletedAt   time.Time
}

// Apply copies a result onto the job.
func (j *Job) Apply(r Result) {
	j.Status = r.Status
	if r.Kind != "" {
		j.Kind = r.Kind
	}
	j.Rows = r.Rows
	j.Plates = r.Plates
	j.TotalVehicles = r.TotalVehicles
	j.Artifacts = r.Artifacts
	j.Error = r.Error
	j.CompletedAt = r.CompletedAt
}

// ProcessingTime returns elapsed time for a running job or total time for a
// finished one.
func (j *Job) ProcessingTime(now time.Time) time.Duration {
	if !j.CompletedAt.IsZero() {
		return j.CompletedAt.Sub(j.StartedAt)
	}
	return now.Sub(j.StartedAt)
}
