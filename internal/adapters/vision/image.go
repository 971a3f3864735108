package vision

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/platecount/internal/domain/enhance"
	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/pkg/logger"
	"github.com/okian/platecount/pkg/metrics"
)

const annotatedJPEGQuality = 90

// imageSource runs one still image through enhancement, detection and
// annotation. It yields a single frame.
type imageSource struct {
	req       Request
	img       image.Image
	detector  Detector
	outputDir string
	log       logger.Logger

	done      bool
	artifacts model.Artifacts
}

// OpenImage decodes the image at req.Path. Detection runs on the first Next.
func OpenImage(req Request, detector Detector, outputDir string, log logger.Logger) (model.Source, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, req.Name, err)
	}
	return &imageSource{req: req, img: img, detector: detector, outputDir: outputDir, log: log}, nil
}

func (s *imageSource) Kind() model.SourceKind     { return model.KindImage }
func (s *imageSource) Name() string               { return s.req.Name }
func (s *imageSource) Close() error               { return nil }
func (s *imageSource) Artifacts() model.Artifacts { return s.artifacts }

func (s *imageSource) Next(ctx context.Context) (model.Frame, error) {
	if s.done {
		return model.Frame{}, io.EOF
	}
	s.done = true

	_, condition := enhance.Analyze(s.img)
	enhanced := enhance.Apply(s.img, condition)

	start := time.Now()
	dets, err := s.detector.Detect(ctx, enhanced)
	metrics.RecordDetectionLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return model.Frame{}, err
	}

	annotated := Annotate(enhanced, dets, string(condition))
	if err := s.writeOutputs(annotated); err != nil {
		return model.Frame{}, err
	}

	return model.Frame{
		Timestamp:  ImagePrefix + s.req.Name,
		Condition:  condition,
		Detections: dets,
	}, nil
}

func (s *imageSource) writeOutputs(annotated image.Image) error {
	if s.outputDir == "" {
		return nil
	}
	name := s.req.OutputName()
	path := filepath.Join(s.outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create annotated image: %w", err)
	}
	if Ext(name) == "png" {
		err = png.Encode(f, annotated)
	} else {
		err = jpeg.Encode(f, annotated, &jpeg.Options{Quality: annotatedJPEGQuality})
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write annotated image: %w", err)
	}
	metrics.RecordOutputFile(string(model.KindImage))
	s.artifacts.Image = name

	preview, err := PreviewDataURL(annotated)
	if err != nil {
		// The job still succeeds without a preview.
		if s.log != nil {
			s.log.Warn(context.Background(), "preview generation failed", logger.String("file", name), logger.Error(err))
		}
		return nil
	}
	s.artifacts.Preview = preview
	return nil
}
