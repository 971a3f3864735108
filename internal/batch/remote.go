package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/platecount/pkg/logger"
)

// RunRemote uploads every discovered file to the service at cfg.BaseURL
// with cfg.Workers concurrent uploads and waits for each job. Results are
// reported in discovery order.
func RunRemote(ctx context.Context, cfg *Config) (*Summary, error) {
	log := logger.Get().Named("batch")

	items, err := Discover(cfg.InputDir)
	if err != nil {
		return nil, err
	}

	client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	log.Info(ctx, "submitting batch",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("files", len(items)),
		logger.Int("workers", workers))

	summary := newSummary()
	results := make([]FileResult, len(items))
	indexes := make(chan int, workers*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = submitItem(ctx, client, poll, items[i])
				if results[i].Err != nil {
					log.Error(ctx, "file failed", logger.String("file", items[i].Name), logger.Error(results[i].Err))
				}
			}
		}()
	}

feed:
	for i := range items {
		select {
		case <-ctx.Done():
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	for _, r := range results {
		if r.Name != "" {
			summary.add(r)
		}
	}
	summary.finish()
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	log.Info(ctx, "batch complete",
		logger.Int("files", len(summary.Files)),
		logger.Int("failed", summary.Failed()),
		logger.Int("uniquePlates", summary.UniquePlates()),
		logger.Duration("duration", summary.Duration))
	return summary, nil
}

func submitItem(ctx context.Context, client *HTTPClient, poll time.Duration, item Item) FileResult {
	out := FileResult{Name: item.Name}

	id, err := client.Upload(ctx, item.Path)
	if err != nil {
		out.Err = fmt.Errorf("upload: %w", err)
		return out
	}
	st, err := client.Wait(ctx, id, poll)
	if err != nil {
		out.Err = fmt.Errorf("job %s: %w", id, err)
		return out
	}
	if st.Status != statusCompleted {
		out.Err = fmt.Errorf("%w: job %s %s: %s", errJobFailed, id, st.Status, st.Error)
		return out
	}

	out.Plates = st.Plates
	out.Vehicles = st.TotalVehicles
	switch {
	case st.OutputVideo != nil:
		out.Output = *st.OutputVideo
	case st.OutputImage != nil:
		out.Output = *st.OutputImage
	}
	return out
}

var errJobFailed = errors.New("job did not complete")
