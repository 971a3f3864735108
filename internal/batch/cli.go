package batch

import (
	"io"
	"os"

	"github.com/okian/platecount/pkg/logger"
)

// SetupLogging initializes the global logger writing to w.
func SetupLogging(w io.Writer, verbose bool) error {
	if err := logger.Init(logger.WithOutput(w)); err != nil {
		return err
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the batch tool.
func ShowHelp() {
	os.Stdout.WriteString(`platecount batch
================

Detect license plates in every video and image of a directory, count the
distinct vehicles of each file and write the vehicle log.

Usage:
  go run ./cmd/batch [options]

Options:
  -input string
        Directory to process (default "input")
  -output string
        Directory for annotated outputs and the log (default "output")
  -log string
        Vehicle log file name (default "vehicle_log.csv")
  -model string
        Detection model path (native backend builds only)
  -detector string
        URL of an HTTP plate detector used for images
  -threshold float
        Plate similarity threshold (default 0.75)
  -merge-unreadable
        Count all unreadable plates of a file as one vehicle (default true)
  -url string
        Upload the directory to a running service instead of processing locally
  -workers int
        Concurrent uploads in -url mode (default 2)
  -timeout duration
        HTTP request timeout in -url mode (default 5m)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Files are processed in name order: videos first, then images. Manifests
(.json) are ordered by the kind they declare.

Examples:
  # Process ./input and write ./output/vehicle_log.csv
  go run ./cmd/batch

  # Send a directory to a running server
  go run ./cmd/batch -input ./clips -url http://localhost:5000
`)
}
