package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/okian/platecount/internal/domain/types"
)

// OutputHandler serves annotated output files.
type OutputHandler struct {
	deps OutputDependencies
}

// NewOutputHandler creates a new output handler.
func NewOutputHandler(deps OutputDependencies) *OutputHandler {
	return &OutputHandler{deps: deps}
}

// HandleOutput handles GET /api/output/{filename} requests.
func (h *OutputHandler) HandleOutput(w http.ResponseWriter, r *http.Request) {
	const op = "api.output"

	name := r.PathValue("filename")
	path, err := h.deps.OutputPath(name)
	if errors.Is(err, types.ErrOutputNotFound) {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrFileNotFound))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeFile(w, r, path)
}
