package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/platecount/internal/domain/types"
)

type streamRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func (s streamRequest) validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return errors.New("missing url")
	}
	return nil
}

// StreamHandler handles stream submissions.
type StreamHandler struct {
	deps StreamDependencies
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps StreamDependencies) *StreamHandler {
	return &StreamHandler{deps: deps}
}

// HandleStream handles POST /api/stream requests.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.stream"

	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.SubmitStream(r.Context(), req.URL, req.Name)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrStreamsUnsupported):
		writeError(w, http.StatusNotImplemented, "not_implemented", NewKind(op, ErrNotImplemented))
		return
	case errors.Is(err, types.ErrInvalidStreamURL):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, types.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{
		JobID:    res.JobID,
		Filename: res.Filename,
		Message:  "Stream processing started",
		Status:   res.Status,
	})
}
