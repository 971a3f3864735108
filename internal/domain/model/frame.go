package model

import (
	"context"
	"encoding/json"
	"fmt"
)

// SourceKind is the type of footage a job processes.
type SourceKind string

// Source kinds.
const (
	KindVideo  SourceKind = "video"
	KindImage  SourceKind = "image"
	KindStream SourceKind = "stream"
)

// Detection is one plate box with its recognized text.
type Detection struct {
	X1   int    `json:"x1"`
	Y1   int    `json:"y1"`
	X2   int    `json:"x2"`
	Y2   int    `json:"y2"`
	Text string `json:"text"`
}

// UnmarshalJSON accepts both the object form and the
// [x1, y1, x2, y2, "text"] tuple form.
func (d *Detection) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err == nil {
		if len(tuple) != 5 {
			return fmt.Errorf("%w: want 5 elements, got %d", ErrMalformedDetection, len(tuple))
		}
		coords := []*int{&d.X1, &d.Y1, &d.X2, &d.Y2}
		for i, c := range coords {
			var f float64
			if err := json.Unmarshal(tuple[i], &f); err != nil {
				return fmt.Errorf("%w: coordinate %d: %v", ErrMalformedDetection, i, err)
			}
			*c = int(f)
		}
		if err := json.Unmarshal(tuple[4], &d.Text); err != nil {
			return fmt.Errorf("%w: text: %v", ErrMalformedDetection, err)
		}
		return nil
	}

	type plain Detection
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDetection, err)
	}
	*d = Detection(p)
	return nil
}

// Frame is the detection output for one decoded frame.
type Frame struct {
	Index      int
	Timestamp  string
	Condition  Condition
	Detections []Detection
}

// Source yields frames in arrival order.
// Next returns io.EOF once the source is exhausted.
type Source interface {
	Kind() SourceKind
	Name() string
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Outputs is implemented by sources that produce annotated artifacts.
type Outputs interface {
	// Artifacts returns output file names relative to the output directory
	// and an optional preview data URL. Valid only after the source is
	// exhausted.
	Artifacts() Artifacts
}

// Artifacts are the files a source wrote while being processed.
type Artifacts struct {
	Image   string
	Video   string
	Preview string
}
