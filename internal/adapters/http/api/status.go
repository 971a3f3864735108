package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/types"
)

type rowResponse struct {
	Timestamp    string `json:"timestamp"`
	Plates       string `json:"plates"`
	VehicleCount int    `json:"vehicle_count"`
	Condition    string `json:"condition"`
}

type statusResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Filename string `json:"filename"`
	URL      string `json:"url,omitempty"`

	// Processing jobs.
	Progress       string `json:"progress,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	ProcessingTime string `json:"processing_time,omitempty"`

	// Finished jobs.
	CompletedAt string `json:"completed_at,omitempty"`
	Error       string `json:"error,omitempty"`

	*resultResponse
}

type resultResponse struct {
	FileType      string        `json:"file_type"`
	OutputImage   *string       `json:"output_image"`
	OutputVideo   *string       `json:"output_video"`
	PreviewImage  *string       `json:"preview_image"`
	CSVData       []rowResponse `json:"csv_data"`
	Plates        []string      `json:"plates"`
	TotalVehicles int           `json:"total_vehicles"`
}

// StatusHandler handles job status requests.
type StatusHandler struct {
	deps StatusDependencies
	now  func() time.Time
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(deps StatusDependencies) *StatusHandler {
	return &StatusHandler{deps: deps, now: time.Now}
}

// HandleStatus handles GET /api/status/{job_id} requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.status"

	job, err := h.deps.Job(r.Context(), r.PathValue("job_id"))
	if errors.Is(err, types.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrJobNotFound))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(&job, h.now()))
}

func newStatusResponse(job *model.Job, now time.Time) statusResponse {
	resp := statusResponse{
		JobID:    job.ID,
		Status:   string(job.Status),
		Filename: job.Filename,
		URL:      job.URL,
	}

	if !job.Status.Terminal() {
		resp.Progress = job.Progress
		if resp.Progress == "" {
			resp.Progress = "Processing..."
		}
		resp.StartedAt = isoTime(job.StartedAt)
		resp.ProcessingTime = formatElapsed(job.ProcessingTime(now))
		return resp
	}

	resp.CompletedAt = isoTime(job.CompletedAt)
	if job.Status != model.StatusCompleted {
		resp.Error = job.Error
		return resp
	}

	rows := make([]rowResponse, len(job.Rows))
	for i, row := range job.Rows {
		rows[i] = rowResponse{
			Timestamp:    row.Timestamp,
			Plates:       row.Plates,
			VehicleCount: row.VehicleCount,
			Condition:    string(row.Condition),
		}
	}
	plates := job.Plates
	if plates == nil {
		plates = []string{}
	}
	fileType := string(job.Kind)
	if job.Kind == model.KindStream {
		fileType = string(model.KindVideo)
	}
	resp.resultResponse = &resultResponse{
		FileType:      fileType,
		OutputImage:   optional(job.Artifacts.Image),
		OutputVideo:   optional(job.Artifacts.Video),
		PreviewImage:  optional(job.Artifacts.Preview),
		CSVData:       rows,
		Plates:        plates,
		TotalVehicles: job.TotalVehicles,
	}
	return resp
}
