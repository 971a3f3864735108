package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/platecount/internal/config"
	"github.com/okian/platecount/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.New(context.Background())
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.OutputDir = filepath.Join(dir, "output")
	cfg.WorkerCount = 2
	cfg.QueueSize = 8
	return cfg
}

const manifest = `{"kind":"video","fps":25,"frames":[
	{"frame":0,"condition":"Clear","detections":[[10,10,50,30,"KA01AB1234"]]},
	{"frame":1,"condition":"Clear","detections":[[10,10,50,30,"KA01AB1234"],[60,10,90,30,"MH12XY9876"]]}
]}`

func TestApplicationWiring(t *testing.T) {
	convey.Convey("Given a service built from configuration", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		svc := newService(cfg, logger.Get())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		convey.Reset(svc.Stop)

		h := newHandler(ctx, svc, cfg)

		convey.Convey("The configured options reach the service", func() {
			stats := svc.GetStats()
			convey.So(stats["workerCount"], convey.ShouldEqual, 2)
			convey.So(stats["queueSize"], convey.ShouldEqual, 8)
			convey.So(stats["storeDriver"], convey.ShouldEqual, "memory")
			convey.So(svc.MaxUploadBytes(), convey.ShouldEqual, cfg.MaxUploadBytes())
		})

		convey.Convey("Every route group is mounted", func() {
			for _, path := range []string{"/", "/api-docs", "/openapi.yaml", "/api/health", "/healthz", "/stats"} {
				w := httptest.NewRecorder()
				h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("A manifest upload completes end to end", func() {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			fw, _ := mw.CreateFormFile("file", "gate.json")
			_, _ = fw.Write([]byte(manifest))
			_ = mw.Close()

			req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			convey.So(w.Code, convey.ShouldEqual, http.StatusAccepted)

			var sub struct {
				JobID string `json:"job_id"`
			}
			convey.So(json.Unmarshal(w.Body.Bytes(), &sub), convey.ShouldBeNil)

			var status map[string]interface{}
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				w := httptest.NewRecorder()
				h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status/"+sub.JobID, http.NoBody))
				_ = json.Unmarshal(w.Body.Bytes(), &status)
				if status["status"] != "processing" {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			convey.So(status["status"], convey.ShouldEqual, "completed")
			convey.So(status["plates"], convey.ShouldResemble, []interface{}{"KA01AB1234", "MH12XY9876"})
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a run with a free port", t, func() {
		cfg := testConfig(t)
		cfg.Addr = "127.0.0.1:0"
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, logger.Get()) }()

		convey.Convey("It stops cleanly when the context is cancelled", func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
			select {
			case err := <-done:
				convey.So(err, convey.ShouldBeNil)
			case <-time.After(10 * time.Second):
				t.Fatal("run did not return")
			}
		})
	})

	convey.Convey("A bad listen address is reported", t, func() {
		cfg := testConfig(t)
		cfg.Addr = "256.0.0.1:bad"
		err := run(context.Background(), cfg, logger.Get())
		convey.So(err, convey.ShouldNotBeNil)
	})
}
