// Package repository stores jobs and their results.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/pkg/metrics"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Counts summarizes the jobs in a store.
type Counts struct {
	Active   int
	Finished int
}

// Store provides read/write access to job state.
type Store interface {
	// Create adds a new job. Returns ErrExists if the id is taken.
	Create(ctx context.Context, job model.Job) error
	// UpdateProgress sets the progress message of a processing job.
	UpdateProgress(ctx context.Context, id, progress string) error
	// Finish moves a processing job to the result's terminal state.
	// Returns ErrInvalidState if the job is not processing.
	Finish(ctx context.Context, id string, result model.Result) error
	// Get returns the job. Returns ErrNotFound if the id is unknown.
	Get(ctx context.Context, id string) (model.Job, error)
	// Delete removes a job.
	Delete(ctx context.Context, id string) error
	// Counts returns the number of processing and finished jobs.
	Counts(ctx context.Context) (Counts, error)
	// Processing returns every job still processing, oldest first.
	Processing(ctx context.Context) ([]model.Job, error)
	Close() error
}

// Config selects and configures a store backend.
type Config struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open returns the store named by cfg.Driver. An empty driver means memory.
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewInMemoryStore(opts...), nil
	case DriverSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath, opts...)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func observe(backend, op string, start time.Time) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
}

func cloneJob(j model.Job) model.Job { //nolint:gocritic // hugeParam: copy semantics are the point
	j.Rows = append([]model.Row(nil), j.Rows...)
	j.Plates = append([]string(nil), j.Plates...)
	return j
}
