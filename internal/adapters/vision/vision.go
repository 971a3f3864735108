// Package vision adapts detection and OCR collaborators into frame sources.
//
// Every Source it returns yields frames whose detections carry cleaned plate
// text: empty OCR output is already replaced by the unreadable sentinel.
package vision

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/tracking"
	"github.com/okian/platecount/pkg/logger"
)

// DefaultFPS is used when a video does not report a usable frame rate.
const DefaultFPS = 25.0

// ImagePrefix marks image timestamps.
const ImagePrefix = "Image: "

// File extensions by kind.
var (
	VideoExts    = []string{"mp4", "avi", "mov", "mkv"}
	ImageExts    = []string{"jpg", "jpeg", "png"}
	ManifestExts = []string{"json"}
)

// AllowedExts lists every extension an upload may have.
func AllowedExts() []string {
	out := make([]string, 0, len(VideoExts)+len(ImageExts)+len(ManifestExts))
	out = append(out, VideoExts...)
	out = append(out, ImageExts...)
	return append(out, ManifestExts...)
}

// Ext returns the lower-cased extension of name without the dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// KindForName guesses the source kind from a file name. Manifests report
// KindVideo; their real kind is read from the file.
func KindForName(name string) (model.SourceKind, bool) {
	ext := Ext(name)
	switch {
	case contains(ImageExts, ext):
		return model.KindImage, true
	case contains(VideoExts, ext), contains(ManifestExts, ext):
		return model.KindVideo, true
	}
	return "", false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// CleanText turns raw OCR output into a reading: surrounding whitespace is
// dropped and empty output becomes the unreadable sentinel.
func CleanText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return tracking.Unreadable
	}
	return s
}

// FormatTimestamp renders the position of frame as HH:MM:SS.mmm.
// Milliseconds are truncated, not rounded.
func FormatTimestamp(frame int, fps float64) string {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = DefaultFPS
	}
	seconds := float64(frame) / fps
	whole := math.Trunc(seconds)
	ms := int((seconds - whole) * 1000)
	s := int(whole)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", s/3600, s/60%60, s%60, ms)
}

// Request describes what to open.
type Request struct {
	JobID string
	// Path is the local file to read. Empty for streams.
	Path string
	// Name is the original file name or the stream save name.
	Name string
	// URL is the stream address for KindStream.
	URL  string
	Kind model.SourceKind
}

// OutputName is the annotated artifact name for a request.
func (r Request) OutputName() string {
	if r.JobID == "" {
		return "annotated_" + r.Name
	}
	return "annotated_" + r.JobID + "_" + r.Name
}

// Opener turns requests into sources.
type Opener struct {
	outputDir string
	detector  Detector
	backend   Backend
	log       logger.Logger
}

// NewOpener creates an opener. A nil backend limits it to manifests and
// images handled by the HTTP detector.
func NewOpener(outputDir string, detector Detector, backend Backend, log logger.Logger) *Opener {
	if log == nil {
		log = logger.New(logger.WithOutput(io.Discard))
	}
	return &Opener{outputDir: outputDir, detector: detector, backend: backend, log: log}
}

// Streams reports whether stream sources can be opened.
func (o *Opener) Streams() bool {
	return o.backend != nil
}

// Open returns a source for req. Manifests are always handled in-process;
// media files need either the compiled-in backend or, for images, a
// detector.
func (o *Opener) Open(ctx context.Context, req Request) (model.Source, error) {
	if req.Kind == model.KindStream {
		if o.backend == nil {
			return nil, fmt.Errorf("%w: streams", ErrMediaUnsupported)
		}
		return o.backend.OpenStream(ctx, req)
	}

	ext := Ext(req.Path)
	switch {
	case contains(ManifestExts, ext):
		m, err := LoadManifest(req.Path)
		if err != nil {
			return nil, err
		}
		return NewManifestSource(m, req.Name)
	case contains(ImageExts, ext):
		if o.backend != nil {
			return o.backend.OpenImage(ctx, req)
		}
		if o.detector == nil {
			return nil, fmt.Errorf("%w: no detector configured for %s", ErrMediaUnsupported, req.Name)
		}
		return OpenImage(req, o.detector, o.outputDir, o.log)
	case contains(VideoExts, ext):
		if o.backend == nil {
			return nil, fmt.Errorf("%w: video %s", ErrMediaUnsupported, req.Name)
		}
		return o.backend.OpenVideo(ctx, req)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, ext)
}
