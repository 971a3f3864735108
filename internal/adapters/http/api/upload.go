package api

import (
	"errors"
	"net/http"

	"github.com/okian/platecount/internal/adapters/vision"
	"github.com/okian/platecount/internal/domain/types"
)

// multipartOverhead is the slack allowed for form boundaries and headers on
// top of the file size limit.
const multipartOverhead = 1 << 20

type uploadResponse struct {
	JobID     string `json:"job_id"`
	Filename  string `json:"filename"`
	Message   string `json:"message,omitempty"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// UploadHandler handles file uploads.
type UploadHandler struct {
	deps UploadDependencies
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(deps UploadDependencies) *UploadHandler {
	return &UploadHandler{deps: deps}
}

// HandleUpload handles POST /api/upload requests. The file is read from the
// multipart field "file".
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "api.upload"

	r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxUploadBytes()+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", NewKind(op, ErrTooLarge))
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			writeError(w, http.StatusBadRequest, "no_file", NewKind(op, ErrNoFile))
		default:
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		}
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no_file", NewKind(op, ErrNoSelection))
		return
	}

	res, err := h.deps.Submit(r.Context(), types.Upload{Filename: header.Filename, Body: file})
	switch {
	case err == nil:
	case errors.Is(err, types.ErrNoFilename), errors.Is(err, types.ErrNoFile):
		writeError(w, http.StatusBadRequest, "no_file", NewKind(op, ErrNoSelection))
		return
	case errors.Is(err, types.ErrUnsupportedType):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:        ErrFileType.Error(),
			Code:         "bad_type",
			AllowedTypes: vision.AllowedExts(),
		})
		return
	case errors.Is(err, types.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", NewKind(op, ErrTooLarge))
		return
	case errors.Is(err, types.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrUploadFailed, err))
		return
	}

	if res.Duplicate {
		writeJSON(w, http.StatusOK, uploadResponse{
			JobID:     res.JobID,
			Filename:  res.Filename,
			Status:    res.Status,
			Duplicate: true,
		})
		return
	}
	writeJSON(w, http.StatusAccepted, uploadResponse{
		JobID:    res.JobID,
		Filename: res.Filename,
		Message:  "File uploaded and processing started",
		Status:   res.Status,
	})
}
