package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/platecount/internal/domain/model"
)

// InMemoryStore keeps jobs in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore(_ ...Option) *InMemoryStore {
	return &InMemoryStore{jobs: make(map[string]model.Job)}
}

func (s *InMemoryStore) Create(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: stored by value
	defer observe(DriverMemory, "create", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ErrExists
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *InMemoryStore) UpdateProgress(ctx context.Context, id, progress string) error {
	defer observe(DriverMemory, "update_progress", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != model.StatusProcessing {
		return ErrInvalidState
	}
	job.Progress = progress
	s.jobs[id] = job
	return nil
}

func (s *InMemoryStore) Finish(ctx context.Context, id string, result model.Result) error { //nolint:gocritic // hugeParam: stored by value
	defer observe(DriverMemory, "finish", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != model.StatusProcessing || !result.Status.Terminal() {
		return ErrInvalidState
	}
	job.Apply(result)
	s.jobs[id] = cloneJob(job)
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (model.Job, error) {
	defer observe(DriverMemory, "get", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	defer observe(DriverMemory, "delete", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *InMemoryStore) Counts(ctx context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c Counts
	for _, job := range s.jobs {
		if job.Status == model.StatusProcessing {
			c.Active++
		} else {
			c.Finished++
		}
	}
	return c, nil
}

func (s *InMemoryStore) Processing(ctx context.Context) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Job
	for _, job := range s.jobs {
		if job.Status == model.StatusProcessing {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
