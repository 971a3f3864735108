// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and environment variables on top of New.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":5000".
	Addr string `koanf:"addr"`
	// CORSOrigin is sent in Access-Control-Allow-Origin on /api/ routes.
	// Empty allows any origin.
	CORSOrigin string `koanf:"cors_origin"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of processing workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the number of upload digests remembered.
	DedupeSize int `koanf:"dedupe_size"`
	// JobTimeout bounds the processing of a single job.
	JobTimeout time.Duration `koanf:"job_timeout"`

	// SimilarityThreshold is the minimum ratio for two plate readings to be
	// treated as the same vehicle.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	// MergeUnreadable collapses all unreadable plates of a source into one
	// vehicle.
	MergeUnreadable bool `koanf:"merge_unreadable"`

	UploadDir   string `koanf:"upload_dir"`
	OutputDir   string `koanf:"output_dir"`
	LogFile     string `koanf:"log_file"`
	MaxUploadMB int64  `koanf:"max_upload_mb"`

	// StoreDriver selects the job store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// DetectorURL points at an external plate detector. Empty uses the
	// local model when one is built in.
	DetectorURL     string        `koanf:"detector_url"`
	DetectorTimeout time.Duration `koanf:"detector_timeout"`
	ModelPath       string        `koanf:"model_path"`
	OCRLanguage     string        `koanf:"ocr_language"`

	// StreamMaxFrames caps the frames read from a live stream.
	StreamMaxFrames int `koanf:"stream_max_frames"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":5000",
		QueueSize:           64,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          50_000,
		JobTimeout:          6000 * time.Second,
		SimilarityThreshold: 0.75,
		MergeUnreadable:     true,
		UploadDir:           "uploads",
		OutputDir:           "output",
		LogFile:             "vehicle_log.csv",
		MaxUploadMB:         100,
		StoreDriver:         "memory",
		SQLitePath:          "platecount.db",
		DetectorTimeout:     30 * time.Second,
		ModelPath:           "best.onnx",
		OCRLanguage:         "eng",
		StreamMaxFrames:     100,
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
