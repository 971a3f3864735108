package api

import "net/http"

// LogHandler exposes the vehicle log.
type LogHandler struct {
	deps LogDependencies
}

// NewLogHandler creates a new log handler.
func NewLogHandler(deps LogDependencies) *LogHandler {
	return &LogHandler{deps: deps}
}

// HandleCSVJSON handles GET /api/csv-json requests: every log line as an
// object keyed by column header.
func (h *LogHandler) HandleCSVJSON(w http.ResponseWriter, r *http.Request) {
	const op = "api.csv_json"

	records, err := h.deps.LogRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, records)
}
