// Package vehiclelog maintains the append-only CSV log of detected vehicles.
package vehiclelog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/report"
	"github.com/okian/platecount/pkg/metrics"
)

// Log appends report rows to a CSV file. Writers are serialized; readers see
// only complete rows.
type Log struct {
	path string
	mu   sync.RWMutex
}

// Open returns a log at path, creating it with a header when missing.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	l := &Log{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := l.Reset(context.Background()); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the file location.
func (l *Log) Path() string { return l.path }

// Reset truncates the log to just the header.
func (l *Log) Reset(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("reset log: %w", err)
	}
	w := csv.NewWriter(f)
	_ = w.Write(report.Header)
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	return f.Close()
}

// Append writes rows at the end of the log.
func (l *Log) Append(_ context.Context, rows []model.Row) error {
	if len(rows) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	w := csv.NewWriter(f)
	for _, r := range rows {
		_ = w.Write(report.Record(r))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("append rows: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	metrics.RecordLogRows(len(rows))
	return nil
}

// Records returns every data row keyed by its header column.
// A missing file yields no records.
func (l *Log) Records(_ context.Context) ([]map[string]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	out := []map[string]string{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		m := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				m[h] = rec[i]
			}
		}
		out = append(out, m)
	}
}

// Rows parses the log back into rows.
func (l *Log) Rows(ctx context.Context) ([]model.Row, error) {
	recs, err := l.Records(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]model.Row, 0, len(recs))
	for _, m := range recs {
		n, _ := strconv.Atoi(m[report.Header[2]])
		rows = append(rows, model.Row{
			Timestamp:    m[report.Header[0]],
			Plates:       m[report.Header[1]],
			VehicleCount: n,
			Condition:    model.Condition(m[report.Header[3]]),
		})
	}
	return rows, nil
}

// WriteDownload renders rows with the download header.
func WriteDownload(w io.Writer, rows []model.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(report.DownloadHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(report.Record(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
