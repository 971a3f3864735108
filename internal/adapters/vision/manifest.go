package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/okian/platecount/internal/domain/enhance"
	"github.com/okian/platecount/internal/domain/model"
)

// Manifest is precomputed detector output for one source.
//
//	{"kind":"video","name":"gate.mp4","fps":25,
//	 "frames":[{"frame":0,"condition":"Foggy","detections":[[1,2,3,4,"KA01"]]}]}
type Manifest struct {
	Kind   model.SourceKind `json:"kind"`
	Name   string           `json:"name"`
	FPS    float64          `json:"fps"`
	Frames []ManifestFrame  `json:"frames"`
}

// ManifestFrame is one frame of a manifest. The condition is taken as given,
// classified from brightness and contrast when both are present, or Clear.
type ManifestFrame struct {
	Frame      *int              `json:"frame,omitempty"`
	Condition  string            `json:"condition,omitempty"`
	Brightness *float64          `json:"brightness,omitempty"`
	Contrast   *float64          `json:"contrast,omitempty"`
	Detections []model.Detection `json:"detections"`
}

// ParseManifest decodes a manifest.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	return &m, nil
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseManifest(f)
}

type manifestSource struct {
	kind   model.SourceKind
	name   string
	frames []model.Frame
	pos    int
}

// NewManifestSource validates m and returns a source replaying it.
// fallbackName is used when the manifest has no name.
func NewManifestSource(m *Manifest, fallbackName string) (model.Source, error) {
	kind := m.Kind
	switch kind {
	case "":
		kind = model.KindVideo
	case model.KindVideo, model.KindImage, model.KindStream:
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrManifest, kind)
	}
	name := m.Name
	if name == "" {
		name = fallbackName
	}

	frames := make([]model.Frame, 0, len(m.Frames))
	for i, mf := range m.Frames {
		idx := i
		if mf.Frame != nil {
			idx = *mf.Frame
		}
		cond, err := manifestCondition(mf)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", idx, err)
		}

		ts := ImagePrefix + name
		if kind != model.KindImage {
			ts = FormatTimestamp(idx, m.FPS)
		}

		dets := make([]model.Detection, len(mf.Detections))
		for j, d := range mf.Detections {
			d.Text = CleanText(d.Text)
			dets[j] = d
		}
		frames = append(frames, model.Frame{Index: idx, Timestamp: ts, Condition: cond, Detections: dets})
	}
	return &manifestSource{kind: kind, name: name, frames: frames}, nil
}

func manifestCondition(mf ManifestFrame) (model.Condition, error) {
	if mf.Condition != "" {
		c, ok := model.ParseCondition(mf.Condition)
		if !ok {
			return "", fmt.Errorf("%w: condition %q", ErrManifest, mf.Condition)
		}
		return c, nil
	}
	if mf.Brightness != nil && mf.Contrast != nil {
		return enhance.Classify(enhance.Stats{Brightness: *mf.Brightness, Contrast: *mf.Contrast}), nil
	}
	return model.Clear, nil
}

func (s *manifestSource) Kind() model.SourceKind { return s.kind }
func (s *manifestSource) Name() string           { return s.name }
func (s *manifestSource) Close() error           { return nil }

func (s *manifestSource) Next(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return model.Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}
