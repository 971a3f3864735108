package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/platecount/internal/adapters/mq/worker"
	"github.com/okian/platecount/internal/adapters/vision"
	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/session"
	"github.com/okian/platecount/internal/domain/tracking"
	"github.com/okian/platecount/pkg/logger"
	"github.com/okian/platecount/pkg/metrics"
)

// Process runs one job to completion. It is called by the worker pool.
func (s *Service) Process(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	if err := s.store.UpdateProgress(ctx, job.ID, ProgressDetecting); err != nil {
		return fmt.Errorf("%w: %w", worker.ErrInternal, err)
	}

	src, err := s.opener.Open(ctx, vision.Request{
		JobID: job.ID,
		Path:  job.InputPath,
		Name:  job.Filename,
		URL:   job.URL,
		Kind:  job.Kind,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", job.Filename, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Warn(ctx, "error closing source", logger.String("job_id", job.ID), logger.Error(err))
		}
	}()

	opts := []session.Option{
		session.WithTrackerOptions(
			tracking.WithThreshold(s.threshold),
			tracking.WithMergeUnreadable(s.mergeUnreadable),
		),
	}
	if job.Kind == model.KindStream {
		opts = append(opts, session.WithMaxFrames(s.streamMaxFrames))
	}
	res, err := session.Run(ctx, src, opts...)
	if err != nil {
		return err
	}

	if err := s.store.UpdateProgress(ctx, job.ID, ProgressFinishing); err != nil {
		return fmt.Errorf("%w: %w", worker.ErrInternal, err)
	}
	// Streams are reported on the job only.
	if job.Kind != model.KindStream {
		if err := s.vlog.Append(ctx, res.Rows); err != nil {
			return fmt.Errorf("%w: %w", worker.ErrInternal, err)
		}
	}

	result := model.Result{
		Status:        model.StatusCompleted,
		Kind:          res.Kind,
		Rows:          res.Rows,
		Plates:        res.Plates,
		TotalVehicles: res.TotalVehicles(),
		Artifacts:     res.Artifacts,
		CompletedAt:   s.now(),
	}
	if err := s.store.Finish(ctx, job.ID, result); err != nil {
		return fmt.Errorf("%w: %w", worker.ErrInternal, err)
	}

	removeFile(job.InputPath)
	elapsed := result.CompletedAt.Sub(job.StartedAt)
	metrics.RecordJobFinished(string(model.StatusCompleted), float64(elapsed.Milliseconds()))
	s.logger.Info(ctx, "job completed",
		logger.String("job_id", job.ID),
		logger.String("filename", job.Filename),
		logger.Int("frames", res.Frames),
		logger.Int("vehicles", len(res.Vehicles)),
		logger.Int("rows", len(res.Rows)),
		logger.Duration("elapsed", elapsed),
	)
	return nil
}

// Abort records a job that could not complete. The upload digest is
// forgotten so the same file can be submitted again.
func (s *Service) Abort(ctx context.Context, job model.Job, status model.JobStatus, err error) { //nolint:gocritic // hugeParam: jobs travel by value
	msg := TimeoutMessage
	switch {
	case s.stopping.Load() && errors.Is(err, context.Canceled):
		status, msg = model.StatusError, InterruptedMessage
	case status != model.StatusTimeout:
		msg = err.Error()
	}
	completedAt := s.now()

	if ferr := s.store.Finish(ctx, job.ID, model.Result{
		Status:      status,
		Error:       msg,
		CompletedAt: completedAt,
	}); ferr != nil {
		s.logger.Error(ctx, "failed to record job failure",
			logger.String("job_id", job.ID),
			logger.String("status", string(status)),
			logger.Error(ferr),
		)
	}
	if job.Digest != "" {
		s.deduper.Unrecord(ctx, job.Digest)
	}
	removeFile(job.InputPath)

	metrics.RecordJobFinished(string(status), float64(completedAt.Sub(job.StartedAt)/time.Millisecond))
	metrics.RecordErrorByType(string(status), "error")
}
