package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/platecount/internal/adapters/http/api"
	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/types"
	"github.com/okian/platecount/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	os.Exit(m.Run())
}

type mockDeps struct {
	submitted   []string
	submitBody  string
	submitErr   error
	duplicateOf string

	streamErr error
	streamURL string

	jobs map[string]model.Job

	outputDir string

	records    []map[string]string
	recordsErr error

	healthErr error
	maxBytes  int64
}

func newMockDeps(t *testing.T) *mockDeps {
	return &mockDeps{jobs: map[string]model.Job{}, outputDir: t.TempDir(), maxBytes: 1 << 20}
}

func (m *mockDeps) Submit(_ context.Context, u types.Upload) (types.SubmitResult, error) {
	if m.submitErr != nil {
		return types.SubmitResult{}, m.submitErr
	}
	data, err := io.ReadAll(u.Body)
	if err != nil {
		return types.SubmitResult{}, err
	}
	m.submitBody = string(data)
	m.submitted = append(m.submitted, u.Filename)
	if m.duplicateOf != "" {
		return types.SubmitResult{JobID: m.duplicateOf, Filename: u.Filename, Status: "duplicate", Duplicate: true}, nil
	}
	return types.SubmitResult{JobID: "job-1", Filename: u.Filename, Status: "processing"}, nil
}

func (m *mockDeps) MaxUploadBytes() int64 { return m.maxBytes }

func (m *mockDeps) SubmitStream(_ context.Context, url, name string) (types.SubmitResult, error) {
	if m.streamErr != nil {
		return types.SubmitResult{}, m.streamErr
	}
	m.streamURL = url
	if name == "" {
		name = "stream_output.mp4"
	}
	return types.SubmitResult{JobID: "stream-1", Filename: name, Status: "processing"}, nil
}

func (m *mockDeps) Job(_ context.Context, id string) (model.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", types.ErrJobNotFound, id)
	}
	return job, nil
}

func (m *mockDeps) JobCSV(ctx context.Context, id string) (string, []byte, error) {
	job, err := m.Job(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if job.Status != model.StatusCompleted {
		return "", nil, types.ErrNotCompleted
	}
	return job.Filename + "_results.csv", []byte("Timestamp,License Plates,Vehicle Count,Condition\n"), nil
}

func (m *mockDeps) OutputPath(name string) (string, error) {
	path := filepath.Join(m.outputDir, filepath.Base(name))
	if _, err := os.Stat(path); err != nil {
		return "", types.ErrOutputNotFound
	}
	return path, nil
}

func (m *mockDeps) LogRecords(context.Context) ([]map[string]string, error) {
	return m.records, m.recordsErr
}

func (m *mockDeps) Health(context.Context) (types.Health, error) {
	if m.healthErr != nil {
		return types.Health{}, m.healthErr
	}
	return types.Health{Active: 2, Completed: 5, Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} { return m.stats }

func newHandler(deps *mockDeps) http.Handler {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}).Register(context.Background(), mux)
	return api.CORSMiddleware(mux, "")
}

func multipartBody(field, filename, content string) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, _ := mw.CreateFormFile(field, filename)
		_, _ = fw.Write([]byte(content))
	} else {
		_ = mw.WriteField("other", "value")
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func do(h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func upload(h http.Handler, field, filename, content string) (*httptest.ResponseRecorder, map[string]interface{}) {
	body, ct := multipartBody(field, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	return do(h, req)
}

func TestUpload(t *testing.T) {
	Convey("Given the API", t, func() {
		deps := newMockDeps(t)
		h := newHandler(deps)

		Convey("A file is accepted for processing", func() {
			w, body := upload(h, "file", "gate.mp4", "video-bytes")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(body["job_id"], ShouldEqual, "job-1")
			So(body["filename"], ShouldEqual, "gate.mp4")
			So(body["status"], ShouldEqual, "processing")
			So(body["message"], ShouldEqual, "File uploaded and processing started")
			So(deps.submitBody, ShouldEqual, "video-bytes")
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
		})

		Convey("A duplicate returns the earlier job", func() {
			deps.duplicateOf = "job-0"
			w, body := upload(h, "file", "gate.mp4", "video-bytes")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(body["job_id"], ShouldEqual, "job-0")
			So(body["status"], ShouldEqual, "duplicate")
			So(body["duplicate"], ShouldEqual, true)
		})

		Convey("A request without a file is rejected", func() {
			w, body := upload(h, "", "", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(body["error"], ShouldEqual, "No file provided")

			req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("{}"))
			req.Header.Set("Content-Type", "application/json")
			w, _ = do(h, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("An empty file name is rejected", func() {
			w, body := upload(h, "file", "", "x")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(body["error"], ShouldBeIn, []interface{}{"No file provided", "No file selected"})
		})

		Convey("A disallowed type lists the allowed ones", func() {
			deps.submitErr = fmt.Errorf("%w: \"txt\"", types.ErrUnsupportedType)
			w, body := upload(h, "file", "notes.txt", "x")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(body["error"], ShouldEqual, "File type not allowed")
			So(body["allowed_types"], ShouldContain, "mp4")
			So(body["allowed_types"], ShouldContain, "png")
		})

		Convey("Backpressure maps to 429", func() {
			deps.submitErr = types.ErrBackpressure
			w, body := upload(h, "file", "gate.mp4", "x")
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(body["code"], ShouldEqual, "backpressure")
		})

		Convey("Oversized files map to 413", func() {
			deps.submitErr = types.ErrTooLarge
			w, _ := upload(h, "file", "gate.mp4", "x")
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)

			deps.submitErr = nil
			deps.maxBytes = 1
			w, body := upload(h, "file", "gate.mp4", strings.Repeat("x", 2<<20))
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
			So(body["error"], ShouldEqual, "File too large")
		})

		Convey("Other failures are reported as upload failures", func() {
			deps.submitErr = errors.New("disk full")
			w, body := upload(h, "file", "gate.mp4", "x")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(body["error"], ShouldEqual, "Upload failed: disk full")
		})

		Convey("Other methods are not allowed", func() {
			w, _ := do(h, httptest.NewRequest(http.MethodGet, "/api/upload", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestStream(t *testing.T) {
	Convey("Given the API", t, func() {
		deps := newMockDeps(t)
		h := newHandler(deps)
		post := func(body string) (*httptest.ResponseRecorder, map[string]interface{}) {
			req := httptest.NewRequest(http.MethodPost, "/api/stream", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			return do(h, req)
		}

		Convey("A stream is accepted", func() {
			w, body := post(`{"url":"rtsp://cam/1"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(body["job_id"], ShouldEqual, "stream-1")
			So(body["filename"], ShouldEqual, "stream_output.mp4")
			So(deps.streamURL, ShouldEqual, "rtsp://cam/1")
		})

		Convey("Bad requests are rejected", func() {
			w, _ := post(`not json`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			w, body := post(`{"name":"x.mp4"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(body["error"], ShouldEqual, "bad request: missing url")
			deps.streamErr = types.ErrInvalidStreamURL
			w, _ = post(`{"url":"::"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Builds without streams answer 501", func() {
			deps.streamErr = types.ErrStreamsUnsupported
			w, _ := post(`{"url":"rtsp://cam/1"}`)
			So(w.Code, ShouldEqual, http.StatusNotImplemented)
		})

		Convey("Backpressure maps to 429", func() {
			deps.streamErr = types.ErrBackpressure
			w, _ := post(`{"url":"rtsp://cam/1"}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		})
	})
}

func TestStatus(t *testing.T) {
	Convey("Given jobs in several states", t, func() {
		deps := newMockDeps(t)
		started := time.Now().Add(-75 * time.Second)
		deps.jobs["running"] = model.Job{
			ID: "running", Filename: "gate.mp4", Status: model.StatusProcessing,
			Progress: "Running vehicle detection...", StartedAt: started,
		}
		deps.jobs["done"] = model.Job{
			ID: "done", Filename: "cam.png", Kind: model.KindImage, Status: model.StatusCompleted,
			StartedAt: started, CompletedAt: started.Add(3 * time.Second),
			Rows:          []model.Row{{Timestamp: "Image: cam.png", Plates: "ABC123, XYZ789", VehicleCount: 2, Condition: model.Lowlight}},
			Plates:        []string{"ABC123", "XYZ789"},
			TotalVehicles: 2,
			Artifacts:     model.Artifacts{Image: "annotated_done_cam.png", Preview: "data:image/jpeg;base64,AAAA"},
		}
		deps.jobs["late"] = model.Job{
			ID: "late", Filename: "long.mp4", Status: model.StatusTimeout,
			StartedAt: started, CompletedAt: started.Add(time.Hour), Error: "Processing timeout exceeded",
		}
		h := newHandler(deps)
		get := func(path string) (*httptest.ResponseRecorder, map[string]interface{}) {
			return do(h, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		}

		Convey("A running job reports progress and elapsed time", func() {
			w, body := get("/api/status/running")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "processing")
			So(body["progress"], ShouldEqual, "Running vehicle detection...")
			So(body["processing_time"], ShouldBeIn, []interface{}{"0:01:15", "0:01:16"})
			So(body["started_at"], ShouldNotBeEmpty)
			So(body, ShouldNotContainKey, "completed_at")
			So(body, ShouldNotContainKey, "csv_data")
		})

		Convey("A completed job reports its results", func() {
			w, body := get("/api/status/done")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "completed")
			So(body["file_type"], ShouldEqual, "image")
			So(body["output_image"], ShouldEqual, "annotated_done_cam.png")
			So(body["output_video"], ShouldBeNil)
			So(body["preview_image"], ShouldStartWith, "data:image/jpeg;base64,")
			So(body["total_vehicles"], ShouldEqual, float64(2))
			So(body["completed_at"], ShouldNotBeEmpty)
			rows := body["csv_data"].([]interface{})
			So(rows, ShouldHaveLength, 1)
			So(rows[0], ShouldResemble, map[string]interface{}{
				"timestamp": "Image: cam.png", "plates": "ABC123, XYZ789", "vehicle_count": float64(2), "condition": "Lowlight",
			})
		})

		Convey("A failed job reports its error", func() {
			_, body := get("/api/status/late")
			So(body["status"], ShouldEqual, "timeout")
			So(body["error"], ShouldEqual, "Processing timeout exceeded")
			So(body, ShouldNotContainKey, "csv_data")
		})

		Convey("An unknown job is 404", func() {
			w, body := get("/api/status/missing")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(body["error"], ShouldEqual, "Job not found")
		})

		Convey("CSV downloads need a completed job", func() {
			w, _ := get("/api/download-csv/done")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "text/csv; charset=utf-8")
			So(w.Header().Get("Content-Disposition"), ShouldEqual, "attachment; filename=cam.png_results.csv")

			w, body := get("/api/download-csv/running")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(body["error"], ShouldEqual, "Job not completed")

			w, _ = get("/api/download-csv/missing")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestFilesAndLog(t *testing.T) {
	Convey("Given the API", t, func() {
		deps := newMockDeps(t)
		h := newHandler(deps)
		So(os.WriteFile(filepath.Join(deps.outputDir, "annotated_x.jpg"), []byte("jpeg-bytes"), 0o644), ShouldBeNil)

		Convey("Output files download as attachments", func() {
			w, _ := do(h, httptest.NewRequest(http.MethodGet, "/api/output/annotated_x.jpg", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "jpeg-bytes")
			So(w.Header().Get("Content-Disposition"), ShouldEqual, "attachment; filename=annotated_x.jpg")

			w, body := do(h, httptest.NewRequest(http.MethodGet, "/api/output/missing.jpg", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(body["error"], ShouldEqual, "File not found")
		})

		Convey("The vehicle log is served as JSON", func() {
			deps.records = []map[string]string{{"Video Timestamp": "00:00:01.000", "Plates Detected": "ABC123"}}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csv-json", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			var got []map[string]string
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got, ShouldResemble, deps.records)

			deps.recordsErr = errors.New("corrupt log")
			w2, body := do(h, httptest.NewRequest(http.MethodGet, "/api/csv-json", http.NoBody))
			So(w2.Code, ShouldEqual, http.StatusInternalServerError)
			So(body["error"], ShouldEqual, "internal error: corrupt log")
		})
	})
}

func TestHealthAndMetrics(t *testing.T) {
	Convey("Given the API", t, func() {
		deps := newMockDeps(t)
		h := newHandler(deps)

		Convey("Health reports job counts", func() {
			w, body := do(h, httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "healthy")
			So(body["active_jobs"], ShouldEqual, float64(2))
			So(body["completed_jobs"], ShouldEqual, float64(5))
			So(body["timestamp"], ShouldEqual, "2024-01-01T12:00:00.000000Z")
		})

		Convey("Health fails when the service is down", func() {
			deps.healthErr = types.ErrNotStarted
			w, _ := do(h, httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Prometheus metrics are served on /healthz", func() {
			do(h, httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "platecount_")
		})

		Convey("Stats are served as JSON", func() {
			w, body := do(h, httptest.NewRequest(http.MethodGet, "/stats", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(body["started"], ShouldEqual, true)
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
		})

		Convey("Preflight requests are answered", func() {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/upload", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusNoContent)
			So(w.Header().Get("Access-Control-Allow-Methods"), ShouldContainSubstring, "POST")
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("API errors carry their kind and cause", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.upload", api.ErrUploadFailed, cause)
		So(errors.Is(err, api.ErrUploadFailed), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.upload: Upload failed: boom")

		So(api.NewKind("api.status", api.ErrJobNotFound).Error(), ShouldEqual, "api.status: Job not found")
		So(errors.Is(api.Wrap("api.csv_json", cause), api.ErrInternal), ShouldBeTrue)
	})
}
