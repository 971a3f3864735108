package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type errorBody struct {
	Error string `json:"error"`
}

type submitBody struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// JobStatus is the subset of GET /api/status the client reads.
type JobStatus struct {
	JobID         string   `json:"job_id"`
	Status        string   `json:"status"`
	Error         string   `json:"error"`
	OutputImage   *string  `json:"output_image"`
	OutputVideo   *string  `json:"output_video"`
	Plates        []string `json:"plates"`
	TotalVehicles int      `json:"total_vehicles"`
}

// Health checks GET /api/health.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// Upload streams the file at path to POST /api/upload and returns the job
// id. Duplicates return the id of the earlier job.
func (c *HTTPClient) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", pr)
	if err != nil {
		_ = pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != StatusAccepted && resp.StatusCode != StatusOK {
		return "", responseError(resp.StatusCode, data)
	}

	var body submitBody
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return body.JobID, nil
}

// Status reads GET /api/status/{id}.
func (c *HTTPClient) Status(ctx context.Context, id string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status/"+id, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != StatusOK {
		return nil, responseError(resp.StatusCode, data)
	}
	var st JobStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}

// Wait polls the job until it leaves the processing state.
func (c *HTTPClient) Wait(ctx context.Context, id string, every time.Duration) (*JobStatus, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		st, err := c.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if st.Status != statusProcessing {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func responseError(code int, data []byte) error {
	var body errorBody
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("status %d: %s", code, body.Error)
	}
	return fmt.Errorf("status %d", code)
}
