package batch

import "time"

// Defaults.
const (
	DefaultInputDir     = "input"
	DefaultOutputDir    = "output"
	DefaultLogFile      = "vehicle_log.csv"
	DefaultWorkers      = 2
	DefaultTimeout      = 5 * time.Minute
	DefaultPollInterval = 1500 * time.Millisecond

	directoryPermission = 0o755
)

// HTTP status codes the remote client cares about.
const (
	StatusOK       = 200
	StatusAccepted = 202
)

// Job states reported by the service.
const (
	statusProcessing = "processing"
	statusCompleted  = "completed"
)
