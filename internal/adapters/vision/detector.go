package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/okian/platecount/internal/domain/model"
)

const (
	defaultDetectorTimeout = 30 * time.Second
	detectorJPEGQuality    = 92
	maxDetectorResponse    = 4 << 20
)

// Detector finds plates in an image and reads their text.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]model.Detection, error)
}

// HTTPDetector delegates detection to a remote service. The frame is POSTed
// as a JPEG and the response is either a list of detections or an object
// with a "detections" list. Both tuple and object detections are accepted.
type HTTPDetector struct {
	url    string
	client *http.Client
}

// DetectorOption configures an HTTPDetector.
type DetectorOption func(*HTTPDetector)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) DetectorOption {
	return func(d *HTTPDetector) {
		if c != nil {
			d.client = c
		}
	}
}

// WithDetectorTimeout sets the per-request timeout.
func WithDetectorTimeout(t time.Duration) DetectorOption {
	return func(d *HTTPDetector) {
		if t > 0 {
			d.client.Timeout = t
		}
	}
}

// NewHTTPDetector creates a detector calling url.
func NewHTTPDetector(url string, opts ...DetectorOption) *HTTPDetector {
	d := &HTTPDetector{url: url, client: &http.Client{Timeout: defaultDetectorTimeout}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]model.Detection, error) {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, img, &jpeg.Options{Quality: detectorJPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode frame: %w", ErrDetector, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetector, err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetector, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDetectorResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrDetector, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrDetector, resp.StatusCode, bytes.TrimSpace(data))
	}

	dets, err := decodeDetections(data)
	if err != nil {
		return nil, err
	}
	for i := range dets {
		dets[i].Text = CleanText(dets[i].Text)
	}
	return dets, nil
}

func decodeDetections(data []byte) ([]model.Detection, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Detections []model.Detection `json:"detections"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDetector, err)
		}
		return wrapped.Detections, nil
	}
	var dets []model.Detection
	if err := json.Unmarshal(data, &dets); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetector, err)
	}
	return dets, nil
}
