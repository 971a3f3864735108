// Package service provides the job service behind the HTTP API: it accepts
// uploads, runs them through the tracking pipeline on a worker pool and keeps
// their results.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/platecount/internal/adapters/mq/queue"
	"github.com/okian/platecount/internal/adapters/mq/worker"
	"github.com/okian/platecount/internal/adapters/repository"
	"github.com/okian/platecount/internal/adapters/vehiclelog"
	"github.com/okian/platecount/internal/adapters/vision"
	"github.com/okian/platecount/internal/domain/dedupe"
	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/tracking"
	"github.com/okian/platecount/internal/domain/types"
	"github.com/okian/platecount/pkg/logger"
	"github.com/okian/platecount/pkg/metrics"
)

// Progress messages reported while a job runs.
const (
	ProgressStarting  = "Starting detection..."
	ProgressDetecting = "Running vehicle detection..."
	ProgressFinishing = "Processing complete, generating preview..."
)

// TimeoutMessage is the error stored for jobs that exceed the job timeout.
const TimeoutMessage = "Processing timeout exceeded"

// InterruptedMessage is the error stored for jobs cut short by a shutdown,
// including jobs a previous process left behind.
const InterruptedMessage = "Processing interrupted by service shutdown"

const (
	defaultMaxUploadBytes  = 100 << 20
	defaultJobTimeout      = 6000 * time.Second
	defaultStreamMaxFrames = 100
	defaultLogFile         = "vehicle_log.csv"
	defaultStopTimeout     = 30 * time.Second
	abortGrace             = 10 * time.Second
)

// Opener turns a job into a frame source.
type Opener interface {
	Open(ctx context.Context, req vision.Request) (model.Source, error)
	// Streams reports whether stream jobs can be opened.
	Streams() bool
}

// Health is the liveness summary reported by the API.
type Health = types.Health

// Service runs jobs and answers queries about them.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	deduper dedupe.Deduper
	queue   *queue.InMemoryQueue
	pool    *worker.Pool
	opener  Opener
	backend vision.Backend
	vlog    *vehiclelog.Log

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	threshold       float64
	mergeUnreadable bool
	uploadDir       string
	outputDir       string
	logFile         string
	maxUploadBytes  int64
	jobTimeout      time.Duration
	storeConfig     repository.Config
	detectorURL     string
	detectorTimeout time.Duration
	modelPath       string
	ocrLanguage     string
	streamMaxFrames int
	monitorInterval time.Duration
	stopTimeout     time.Duration

	// State
	started    bool
	stopping   atomic.Bool
	stopCh     chan struct{}
	cancelPool context.CancelFunc
	now        func() time.Time

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       64,
		dedupeSize:      50000,
		threshold:       tracking.DefaultThreshold,
		mergeUnreadable: true,
		uploadDir:       "uploads",
		outputDir:       "output",
		logFile:         defaultLogFile,
		maxUploadBytes:  defaultMaxUploadBytes,
		jobTimeout:      defaultJobTimeout,
		storeConfig:     repository.Config{Driver: repository.DriverMemory},
		detectorTimeout: 30 * time.Second,
		ocrLanguage:     "eng",
		streamMaxFrames: defaultStreamMaxFrames,
		monitorInterval: 15 * time.Second,
		stopTimeout:     defaultStopTimeout,
		stopCh:          make(chan struct{}),
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the store, the vehicle log and the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting job service...")

	for _, dir := range []string{s.uploadDir, s.outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	store, err := repository.Open(ctx, s.storeConfig, repository.WithLogger(s.logger.Named("repository")))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	if err := s.closeInterrupted(ctx, store, "previous run"); err != nil {
		_ = store.Close()
		return err
	}

	logPath := s.logFile
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(s.outputDir, logPath)
	}
	vlog, err := vehiclelog.Open(logPath)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("open vehicle log: %w", err)
	}

	if s.opener == nil {
		if err := s.buildOpener(); err != nil {
			_ = store.Close()
			return err
		}
	}

	s.store = store
	s.vlog = vlog
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithJobTimeout(s.jobTimeout),
		worker.WithLogger(s.logger.Named("worker")),
	)
	poolCtx, cancel := context.WithCancel(ctx)
	s.cancelPool = cancel
	s.stopping.Store(false)
	s.pool.Start(poolCtx)
	s.stopCh = make(chan struct{})
	go s.monitor(s.stopCh)

	s.started = true
	s.logger.Info(ctx, "job service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("store", s.storeDriver()),
		logger.String("vehicleLog", logPath),
		logger.Bool("streams", s.opener.Streams()),
	)
	return nil
}

func (s *Service) buildOpener() error {
	backend, err := vision.NewBackend(vision.BackendConfig{
		OutputDir:   s.outputDir,
		ModelPath:   s.modelPath,
		OCRLanguage: s.ocrLanguage,
		Logger:      s.logger.Named("vision"),
	})
	if err != nil {
		return fmt.Errorf("vision backend: %w", err)
	}

	var detector vision.Detector
	if s.detectorURL != "" {
		detector = vision.NewHTTPDetector(s.detectorURL, vision.WithDetectorTimeout(s.detectorTimeout))
	}
	if backend == nil && detector == nil {
		s.logger.Warn(context.Background(), "no detection backend or detector configured; only manifests can be processed")
	}

	s.backend = backend
	s.opener = vision.NewOpener(s.outputDir, detector, backend, s.logger.Named("vision"))
	return nil
}

// Stop drains queued jobs and releases every resource.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping job service...")

	// The pool closes the queue before waiting on workers. Jobs still
	// running after the drain window are cancelled and aborted while the
	// store is open.
	drainCtx, cancelDrain := context.WithTimeout(ctx, s.stopTimeout)
	err := s.pool.Shutdown(drainCtx)
	cancelDrain()
	if err != nil {
		s.logger.Warn(ctx, "cancelling unfinished jobs", logger.Error(err))
		s.stopping.Store(true)
		s.cancelPool()
		abortCtx, cancelAbort := context.WithTimeout(ctx, abortGrace)
		if err := s.pool.Shutdown(abortCtx); err != nil {
			s.logger.Warn(ctx, "worker pool did not stop cleanly", logger.Error(err))
		}
		cancelAbort()
	}
	s.cancelPool()
	// Queued jobs never picked up and workers that ignored cancellation.
	if err := s.closeInterrupted(ctx, s.store, "shutdown"); err != nil {
		s.logger.Warn(ctx, "could not close interrupted jobs", logger.Error(err))
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Warn(ctx, "error closing vision backend", logger.Error(err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "error closing store", logger.Error(err))
	}

	close(s.stopCh)
	s.started = false
	s.logger.Info(ctx, "job service stopped")
}

// closeInterrupted moves every job still processing in store to the error
// state and drops its upload.
func (s *Service) closeInterrupted(ctx context.Context, store repository.Store, cause string) error {
	jobs, err := store.Processing(ctx)
	if err != nil {
		return fmt.Errorf("list interrupted jobs: %w", err)
	}
	for i := range jobs {
		job := &jobs[i]
		err := store.Finish(ctx, job.ID, model.Result{
			Status:      model.StatusError,
			Error:       InterruptedMessage,
			CompletedAt: s.now(),
		})
		if err != nil && !errors.Is(err, repository.ErrInvalidState) {
			return fmt.Errorf("close interrupted job %s: %w", job.ID, err)
		}
		if s.deduper != nil && job.Digest != "" {
			s.deduper.Unrecord(ctx, job.Digest)
		}
		removeFile(job.InputPath)
		metrics.RecordJobFinished(string(model.StatusError), float64(s.now().Sub(job.StartedAt).Milliseconds()))
	}
	if len(jobs) > 0 {
		s.logger.Warn(ctx, "closed interrupted jobs",
			logger.Int("jobs", len(jobs)),
			logger.String("cause", cause),
		)
	}
	return nil
}

// monitor refreshes runtime gauges until stop is closed.
func (s *Service) monitor(stop <-chan struct{}) {
	ticker := time.NewTicker(s.monitorInterval)
	defer ticker.Stop()

	var lastGC uint32
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			metrics.UpdateSystemMemoryUsage(m.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
			if m.NumGC != lastGC {
				lastGC = m.NumGC
				metrics.RecordSystemGCPauseTime(float64(m.PauseNs[(m.NumGC+255)%256]) / 1e6)
			}
			s.pool.UpdateMetrics()
			metrics.UpdateQueueSize(s.queue.Len(context.Background()))
			metrics.UpdateDedupeEntries(s.deduper.Size())
		}
	}
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func (s *Service) storeDriver() string {
	if s.storeConfig.Driver == "" {
		return repository.DriverMemory
	}
	return s.storeConfig.Driver
}

// Streams reports whether stream jobs are accepted.
func (s *Service) Streams() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opener != nil && s.opener.Streams()
}

// MaxUploadBytes is the largest accepted upload.
func (s *Service) MaxUploadBytes() int64 { return s.maxUploadBytes }

// Health reports how many jobs are running and finished.
func (s *Service) Health(ctx context.Context) (Health, error) {
	if !s.isStarted() {
		return Health{}, ErrNotStarted
	}
	c, err := s.store.Counts(ctx)
	if err != nil {
		return Health{}, err
	}
	return Health{Active: c.Active, Completed: c.Finished, Timestamp: s.now()}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"jobTimeout":  s.jobTimeout.String(),
		"storeDriver": s.storeDriver(),
	}

	if s.started {
		ctx := context.Background()
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["busyWorkers"] = s.pool.Busy()
		stats["dedupeEntries"] = s.deduper.Size()
		stats["streams"] = s.opener.Streams()
		if c, err := s.store.Counts(ctx); err == nil {
			stats["activeJobs"] = c.Active
			stats["finishedJobs"] = c.Finished
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
