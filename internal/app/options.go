package service

import (
	"time"

	"github.com/okian/platecount/internal/adapters/repository"
	"github.com/okian/platecount/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of jobs processed in parallel.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the number of upload digests remembered.
// Zero or less keeps every digest.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		s.dedupeSize = size
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSimilarity configures plate matching for every session.
func WithSimilarity(threshold float64, mergeUnreadable bool) Option {
	return func(s *Service) {
		s.threshold = threshold
		s.mergeUnreadable = mergeUnreadable
	}
}

// WithDirs sets where uploads are saved and outputs are written.
func WithDirs(uploadDir, outputDir string) Option {
	return func(s *Service) {
		if uploadDir != "" {
			s.uploadDir = uploadDir
		}
		if outputDir != "" {
			s.outputDir = outputDir
		}
	}
}

// WithLogFile sets the vehicle log file. Relative paths live in the output
// directory.
func WithLogFile(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.logFile = name
		}
	}
}

// WithMaxUploadBytes bounds the size of an uploaded file.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithJobTimeout bounds the processing time of one job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithStore selects the job store backend.
func WithStore(cfg repository.Config) Option {
	return func(s *Service) {
		s.storeConfig = cfg
	}
}

// WithDetector points image processing at an HTTP detection service.
func WithDetector(url string, timeout time.Duration) Option {
	return func(s *Service) {
		s.detectorURL = url
		if timeout > 0 {
			s.detectorTimeout = timeout
		}
	}
}

// WithModel configures the native detection backend.
func WithModel(modelPath, ocrLanguage string) Option {
	return func(s *Service) {
		if modelPath != "" {
			s.modelPath = modelPath
		}
		if ocrLanguage != "" {
			s.ocrLanguage = ocrLanguage
		}
	}
}

// WithStreamMaxFrames caps the frames read from a stream.
func WithStreamMaxFrames(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.streamMaxFrames = n
		}
	}
}

// WithOpener replaces the source opener built at Start.
func WithOpener(o Opener) Option {
	return func(s *Service) {
		s.opener = o
	}
}

// WithStopTimeout bounds how long Stop lets running jobs finish before
// cancelling them.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// WithMonitorInterval sets how often runtime gauges are refreshed.
func WithMonitorInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.monitorInterval = d
		}
	}
}
