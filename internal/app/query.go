package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/platecount/internal/adapters/repository"
	"github.com/okian/platecount/internal/adapters/vehiclelog"
	"github.com/okian/platecount/internal/domain/model"
)

// Job returns the current state of a job.
func (s *Service) Job(ctx context.Context, id string) (model.Job, error) {
	if !s.isStarted() {
		return model.Job{}, ErrNotStarted
	}
	job, err := s.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, err
}

// JobCSV renders the rows of a completed job as a CSV download and returns
// its file name.
func (s *Service) JobCSV(ctx context.Context, id string) (string, []byte, error) {
	job, err := s.Job(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if job.Status != model.StatusCompleted {
		return "", nil, fmt.Errorf("%w: %s is %s", ErrNotCompleted, id, job.Status)
	}

	var buf bytes.Buffer
	if err := vehiclelog.WriteDownload(&buf, job.Rows); err != nil {
		return "", nil, err
	}
	return job.Filename + "_results.csv", buf.Bytes(), nil
}

// LogRecords returns every line of the vehicle log keyed by column header.
func (s *Service) LogRecords(ctx context.Context) ([]map[string]string, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	return s.vlog.Records(ctx)
}

// OutputPath resolves an output file name to its path. Names that are not
// plain file names in the output directory are not found.
func (s *Service) OutputPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrOutputNotFound, name)
	}
	path := filepath.Join(s.outputDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %q", ErrOutputNotFound, name)
	}
	return path, nil
}
