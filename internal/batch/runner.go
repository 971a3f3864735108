package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/platecount/internal/adapters/vehiclelog"
	"github.com/okian/platecount/internal/adapters/vision"
	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/session"
	"github.com/okian/platecount/internal/domain/tracking"
	"github.com/okian/platecount/pkg/logger"
)

// Opener turns a request into a frame source.
type Opener interface {
	Open(ctx context.Context, req vision.Request) (model.Source, error)
}

// Run processes cfg.InputDir, locally or through the service at
// cfg.BaseURL.
func Run(ctx context.Context, cfg *Config) (*Summary, error) {
	if cfg.Remote() {
		return RunRemote(ctx, cfg)
	}
	return RunLocal(ctx, cfg)
}

// RunLocal builds the detection stack from cfg and processes every file of
// cfg.InputDir in-process.
func RunLocal(ctx context.Context, cfg *Config) (*Summary, error) {
	log := logger.Get().Named("batch")
	if err := os.MkdirAll(cfg.OutputDir, directoryPermission); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	backend, err := vision.NewBackend(vision.BackendConfig{
		OutputDir:   cfg.OutputDir,
		ModelPath:   cfg.ModelPath,
		OCRLanguage: cfg.OCRLanguage,
		Logger:      log.Named("vision"),
	})
	if err != nil {
		return nil, fmt.Errorf("vision backend: %w", err)
	}
	if backend != nil {
		defer func() {
			if err := backend.Close(); err != nil {
				log.Warn(ctx, "failed to close backend", logger.Error(err))
			}
		}()
	}
	var detector vision.Detector
	if cfg.DetectorURL != "" {
		detector = vision.NewHTTPDetector(cfg.DetectorURL, vision.WithDetectorTimeout(cfg.DetectorTimeout))
	}
	opener := vision.NewOpener(cfg.OutputDir, detector, backend, log.Named("vision"))

	logPath := cfg.LogFile
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(cfg.OutputDir, logPath)
	}
	vlog, err := vehiclelog.Open(logPath)
	if err != nil {
		return nil, err
	}
	return Process(ctx, cfg, opener, vlog)
}

// Process resets vlog and runs every discovered file through opener,
// appending each file's rows as it finishes. A file that fails is reported
// in the summary and the run continues.
func Process(ctx context.Context, cfg *Config, opener Opener, vlog *vehiclelog.Log) (*Summary, error) {
	log := logger.Get().Named("batch")

	items, err := Discover(cfg.InputDir)
	if err != nil {
		return nil, err
	}
	if err := vlog.Reset(ctx); err != nil {
		return nil, err
	}

	summary := newSummary()
	summary.LogPath = vlog.Path()
	log.Info(ctx, "starting batch", logger.String("input", cfg.InputDir), logger.Int("files", len(items)))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res := processItem(ctx, cfg, opener, vlog, item)
		if res.Err != nil {
			log.Error(ctx, "file failed", logger.String("file", item.Name), logger.Error(res.Err))
		} else {
			log.Debug(ctx, "file done", logger.String("file", item.Name), logger.Int("vehicles", res.Vehicles))
		}
		summary.add(res)
	}

	summary.finish()
	log.Info(ctx, "batch complete",
		logger.Int("files", len(summary.Files)),
		logger.Int("failed", summary.Failed()),
		logger.Int("uniquePlates", summary.UniquePlates()),
		logger.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func processItem(ctx context.Context, cfg *Config, opener Opener, vlog *vehiclelog.Log, item Item) FileResult {
	out := FileResult{Name: item.Name}

	src, err := opener.Open(ctx, vision.Request{Path: item.Path, Name: item.Name, Kind: item.Kind})
	if err != nil {
		out.Err = err
		return out
	}
	defer src.Close()

	res, err := session.Run(ctx, src, session.WithTrackerOptions(trackerOptions(cfg)...))
	if err != nil {
		out.Err = err
		return out
	}
	if err := vlog.Append(ctx, res.Rows); err != nil {
		out.Err = err
		return out
	}

	out.Vehicles = len(res.Sightings)
	for _, s := range res.Sightings {
		out.Plates = append(out.Plates, s.Plate)
	}
	switch {
	case res.Artifacts.Video != "":
		out.Output = filepath.Join(cfg.OutputDir, res.Artifacts.Video)
	case res.Artifacts.Image != "":
		out.Output = filepath.Join(cfg.OutputDir, res.Artifacts.Image)
	}
	return out
}

func trackerOptions(cfg *Config) []tracking.Option {
	var opts []tracking.Option
	if cfg.SimilarityThreshold > 0 {
		opts = append(opts, tracking.WithThreshold(cfg.SimilarityThreshold))
	}
	return append(opts, tracking.WithMergeUnreadable(cfg.MergeUnreadable))
}
