package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/okian/platecount/internal/domain/types"
)

// DownloadHandler serves the CSV report of one job.
type DownloadHandler struct {
	deps DownloadDependencies
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(deps DownloadDependencies) *DownloadHandler {
	return &DownloadHandler{deps: deps}
}

// HandleDownload handles GET /api/download-csv/{job_id} requests.
func (h *DownloadHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	const op = "api.download_csv"

	name, data, err := h.deps.JobCSV(r.Context(), r.PathValue("job_id"))
	switch {
	case err == nil:
	case errors.Is(err, types.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrJobNotFound))
		return
	case errors.Is(err, types.ErrNotCompleted):
		writeError(w, http.StatusBadRequest, "not_completed", NewKind(op, ErrNotCompleted))
		return
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
