// Package session runs one tracker over one source and builds its report.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/report"
	"github.com/okian/platecount/internal/domain/tracking"
	"github.com/okian/platecount/pkg/metrics"
)

// Result is the outcome of a fully processed source.
type Result struct {
	Kind      model.SourceKind
	Name      string
	Rows      []model.Row
	Sightings []tracking.Sighting
	Vehicles  []tracking.Vehicle
	Plates    []string
	Frames    int
	Condition model.Condition
	Artifacts model.Artifacts
}

// TotalVehicles sums the vehicle counts of the result rows.
func (r Result) TotalVehicles() int {
	return report.TotalVehicles(r.Rows)
}

type config struct {
	tracker   []tracking.Option
	maxFrames int
	progress  func(frames int)
}

// Option configures Run.
type Option func(*config)

// WithTrackerOptions configures the tracker created for the session.
func WithTrackerOptions(opts ...tracking.Option) Option {
	return func(c *config) { c.tracker = append(c.tracker, opts...) }
}

// WithMaxFrames stops reading after n frames. n <= 0 reads to the end.
func WithMaxFrames(n int) Option {
	return func(c *config) { c.maxFrames = n }
}

// WithProgress is called after every processed frame.
func WithProgress(fn func(frames int)) Option {
	return func(c *config) { c.progress = fn }
}

// Run feeds every detection of src, in order, into a fresh tracker and
// builds the report rows once the source is exhausted.
//
// If ctx is cancelled or the source fails, the partial session is dropped and
// only the error is returned.
func Run(ctx context.Context, src model.Source, opts ...Option) (Result, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	tr := tracking.NewTracker(cfg.tracker...)
	condition := model.Clear
	frames := 0

	for cfg.maxFrames <= 0 || frames < cfg.maxFrames {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("%w: frame %d: %w", ErrSource, frames, err)
		}

		frames++
		if frame.Condition != "" {
			condition = frame.Condition
		}
		metrics.RecordFrame(string(condition))

		for _, d := range frame.Detections {
			created := tr.AddDetection(d.Text, frame.Timestamp)
			metrics.RecordObservation(created, d.Text == tracking.Unreadable)
		}
		if cfg.progress != nil {
			cfg.progress(frames)
		}
	}

	sightings := tr.UniqueVehicles()
	res := Result{
		Kind:      src.Kind(),
		Name:      src.Name(),
		Sightings: sightings,
		Vehicles:  tr.Vehicles(),
		Plates:    report.SortedPlates(sightings),
		Frames:    frames,
		Condition: condition,
	}

	switch res.Kind {
	case model.KindImage:
		if row, ok := report.ImageRow(res.Name, sightings, condition); ok {
			res.Rows = []model.Row{row}
		}
	default:
		res.Rows = report.VideoRows(sightings, condition)
	}

	if out, ok := src.(model.Outputs); ok {
		res.Artifacts = out.Artifacts()
	}
	return res, nil
}
