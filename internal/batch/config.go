// Package batch processes a directory of media outside the HTTP service,
// either locally or by uploading it to a running server.
package batch

import "time"

// Config holds configuration for a batch run.
type Config struct {
	InputDir  string // Directory scanned for videos, images and manifests
	OutputDir string // Annotated outputs and the vehicle log
	LogFile   string // Vehicle log name; relative paths live in OutputDir

	ModelPath       string        // Detection model for the native backend
	OCRLanguage     string        // Tesseract language
	DetectorURL     string        // Optional HTTP plate detector
	DetectorTimeout time.Duration // Detector request timeout

	SimilarityThreshold float64 // Minimum ratio for two readings to match
	MergeUnreadable     bool    // Collapse unreadable plates into one vehicle

	BaseURL      string        // Remote mode: service URL; empty runs locally
	Workers      int           // Remote mode: concurrent uploads
	Timeout      time.Duration // Remote mode: HTTP request timeout
	PollInterval time.Duration // Remote mode: status polling interval
	Verbose      bool          // Enable debug logging
}

// Remote reports whether files are sent to a running service.
func (c *Config) Remote() bool {
	return c.BaseURL != ""
}
