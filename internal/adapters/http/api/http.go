// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/types"
	"github.com/okian/platecount/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	UploadDependencies
	StreamDependencies
	StatusDependencies
	OutputDependencies
	DownloadDependencies
	LogDependencies
	HealthDependencies
}

// UploadDependencies accepts uploaded files.
type UploadDependencies interface {
	Submit(ctx context.Context, u types.Upload) (types.SubmitResult, error)
	MaxUploadBytes() int64
}

// StreamDependencies accepts stream jobs.
type StreamDependencies interface {
	SubmitStream(ctx context.Context, url, name string) (types.SubmitResult, error)
}

// StatusDependencies reads job state.
type StatusDependencies interface {
	Job(ctx context.Context, id string) (model.Job, error)
}

// OutputDependencies resolves annotated output files.
type OutputDependencies interface {
	OutputPath(name string) (string, error)
}

// DownloadDependencies renders per-job CSV downloads.
type DownloadDependencies interface {
	JobCSV(ctx context.Context, id string) (string, []byte, error)
}

// LogDependencies reads the vehicle log.
type LogDependencies interface {
	LogRecords(ctx context.Context) ([]map[string]string, error)
}

// HealthDependencies reports job counts.
type HealthDependencies interface {
	Health(ctx context.Context) (types.Health, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	metricsHandler  *MetricsHandler
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	uploadHandler   *UploadHandler
	streamHandler   *StreamHandler
	statusHandler   *StatusHandler
	outputHandler   *OutputHandler
	downloadHandler *DownloadHandler
	logHandler      *LogHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		metricsHandler:  NewMetricsHandler(),
		healthHandler:   NewHealthHandler(deps),
		statsHandler:    NewStatsHandler(statsProvider),
		uploadHandler:   NewUploadHandler(deps),
		streamHandler:   NewStreamHandler(deps),
		statusHandler:   NewStatusHandler(deps),
		outputHandler:   NewOutputHandler(deps),
		downloadHandler: NewDownloadHandler(deps),
		logHandler:      NewLogHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.metricsHandler.HandleMetrics, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /api/upload", MetricsMiddleware(s.uploadHandler.HandleUpload, "upload"))
	mux.HandleFunc("POST /api/stream", MetricsMiddleware(s.streamHandler.HandleStream, "stream"))
	mux.HandleFunc("GET /api/status/{job_id}", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))
	mux.HandleFunc("GET /api/output/{filename}", MetricsMiddleware(s.outputHandler.HandleOutput, "output"))
	mux.HandleFunc("GET /api/download-csv/{job_id}", MetricsMiddleware(s.downloadHandler.HandleDownload, "download_csv"))
	mux.HandleFunc("GET /api/csv-json", MetricsMiddleware(s.logHandler.HandleCSVJSON, "csv_json"))
	mux.HandleFunc("GET /api/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
}

type errorResponse struct {
	Error        string   `json:"error"`
	Code         string   `json:"code,omitempty"`
	AllowedTypes []string `json:"allowed_types,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorResponse{Error: message(status, err), Code: code})
}

func message(status int, err error) string {
	if err == nil {
		return http.StatusText(status)
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if status >= http.StatusInternalServerError {
			logger.Get().Named("api").Error(context.Background(), "request failed", logger.String("op", apiErr.Op), logger.Error(err))
		}
		return apiErr.Message()
	}
	return err.Error()
}
