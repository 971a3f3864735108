// Package worker runs queued jobs through a processor with a time limit.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/pkg/logger"
	"github.com/okian/platecount/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultJobTimeout   = 6000 * time.Second
	abortTimeout        = 10 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = model.Job

// Processor does the work for one job.
type Processor interface {
	// Process runs job to completion and records its result. A returned
	// error means the result was not recorded.
	Process(ctx context.Context, job Job) error
	// Abort records a terminal failure for job.
	Abort(ctx context.Context, job Job, status model.JobStatus, err error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Classify maps the outcome of a job to its terminal state: panics and
// internal failures are errors, exceeded deadlines are timeouts and anything
// else is a failure.
func Classify(ctx context.Context, err error) model.JobStatus {
	switch {
	case err == nil:
		return model.StatusCompleted
	case errors.Is(err, ErrPanic), errors.Is(err, ErrInternal):
		return model.StatusError
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return model.StatusTimeout
	default:
		return model.StatusFailed
	}
}

// InMemoryWorker processes one job at a time.
type InMemoryWorker struct {
	queue      Queue
	processor  Processor
	name       string
	jobTimeout time.Duration
	busy       *atomic.Int64

	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		processor:  processor,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		busy:       &atomic.Int64{},
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the worker loop until ctx is cancelled, Shutdown is called or
// the queue is closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.handle(ctx, job)
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out", logger.String("worker", w.name))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

func (w *InMemoryWorker) handle(ctx context.Context, job Job) { //nolint:gocritic // hugeParam: jobs travel by value
	start := time.Now()
	w.busy.Add(1)
	defer func() {
		w.busy.Add(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	err := w.process(jobCtx, job)
	if err == nil {
		return
	}

	status := Classify(jobCtx, err)
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", string(status))
	w.logger.Error(ctx, "job did not complete",
		logger.String("job_id", job.ID),
		logger.String("status", string(status)),
		logger.Duration("elapsed", time.Since(start)),
		logger.Error(err),
	)

	abortCtx, cancelAbort := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancelAbort()
	w.processor.Abort(abortCtx, job, status, err)
}

// process runs the processor and turns a panic into ErrPanic.
func (w *InMemoryWorker) process(ctx context.Context, job Job) (err error) { //nolint:gocritic // hugeParam: jobs travel by value
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerPanic()
			w.logger.Error(ctx, "job panicked",
				logger.String("job_id", job.ID),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return w.processor.Process(ctx, job)
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    atomic.Int64

	logger logger.Logger
}

// NewPool creates a new worker pool. workerCount < 1 uses one worker per CPU.
func NewPool(workerCount int, queue Queue, processor Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		name := "worker-" + strconv.Itoa(i)
		wopts := append([]Option{WithName(name)}, opts...)
		w := NewInMemoryWorker(queue, processor, wopts...)
		w.busy = &p.busy
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Busy returns the number of workers currently running a job.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// UpdateMetrics publishes busy and idle worker counts.
func (p *Pool) UpdateMetrics() {
	busy := p.Busy()
	metrics.UpdateWorkerActiveCount(busy)
	metrics.UpdateWorkerIdleCount(len(p.workers) - busy)
}

// Shutdown closes the queue when it supports it and lets the workers drain
// it. Workers still busy when ctx or the pool timeout expires are told to
// stop after their current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
			continue
		default:
		}
		select {
		case <-w.done:
		case <-waitCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	for _, w := range p.workers {
		w.stop()
	}

	if timedOut > 0 {
		return fmt.Errorf("%d workers still running: %w", timedOut, waitCtx.Err())
	}
	return nil
}
