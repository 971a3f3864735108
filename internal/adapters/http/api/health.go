package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/platecount/pkg/metrics"
)

type healthResponse struct {
	Status        string `json:"status"`
	ActiveJobs    int    `json:"active_jobs"`
	CompletedJobs int    `json:"completed_jobs"`
	Timestamp     string `json:"timestamp"`
}

// HealthHandler reports service health as JSON.
type HealthHandler struct {
	deps HealthDependencies
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps HealthDependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HandleHealth handles GET /api/health requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	const op = "api.health"

	health, err := h.deps.Health(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		ActiveJobs:    health.Active,
		CompletedJobs: health.Completed,
		Timestamp:     isoTime(health.Timestamp),
	})
}

// MetricsHandler serves Prometheus metrics.
type MetricsHandler struct {
	handler http.Handler
}

// NewMetricsHandler creates a handler over the application registry.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{handler: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})}
}

// HandleMetrics handles GET /healthz requests.
func (h *MetricsHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
