package batch_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/platecount/internal/adapters/http/api"
	"github.com/okian/platecount/internal/adapters/vehiclelog"
	"github.com/okian/platecount/internal/adapters/vision"
	service "github.com/okian/platecount/internal/app"
	"github.com/okian/platecount/internal/batch"
	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	os.Exit(m.Run())
}

const (
	videoManifest = `{"kind":"video","fps":25,"frames":[
	{"frame":0,"condition":"Clear","detections":[[10,10,50,30,"KA01AB1234"]]},
	{"frame":1,"condition":"Clear","detections":[[10,10,50,30,"KA01AB123"],[60,10,90,30,"MH12XY9876"]]}
]}`
	secondVideo = `{"kind":"video","fps":25,"frames":[
	{"frame":0,"condition":"Clear","detections":[[10,10,50,30,"KA01AB1234"]]}
]}`
	imageManifest = `{"kind":"image","name":"cam.png","frames":[
	{"condition":"Lowlight","detections":[[1,1,5,5,"XYZ789"],[6,1,9,5,"ABC123"]]}
]}`
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDiscover(t *testing.T) {
	Convey("Given a mixed input directory", t, func() {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{
			"b_video.json": videoManifest,
			"a_cam.json":   imageManifest,
			"z.jpg":        "",
			"clip.mp4":     "",
			"notes.txt":    "",
			"broken.json":  "{",
		})
		So(os.Mkdir(filepath.Join(dir, "sub.mp4"), 0o755), ShouldBeNil)

		items, err := batch.Discover(dir)
		So(err, ShouldBeNil)

		Convey("Videos come first, then images, each in name order", func() {
			names := make([]string, len(items))
			for i, it := range items {
				names[i] = it.Name
			}
			So(names, ShouldResemble, []string{"b_video.json", "broken.json", "clip.mp4", "a_cam.json", "z.jpg"})
		})

		Convey("Manifests take their declared kind", func() {
			So(items[0].Kind, ShouldEqual, model.KindVideo)
			So(items[3].Kind, ShouldEqual, model.KindImage)
			So(items[3].Path, ShouldEqual, filepath.Join(dir, "a_cam.json"))
		})
	})

	Convey("A missing directory is an error", t, func() {
		_, err := batch.Discover(filepath.Join(t.TempDir(), "missing"))
		So(err, ShouldNotBeNil)
	})
}

func TestRunLocal(t *testing.T) {
	Convey("Given an input directory of manifests", t, func() {
		ctx := context.Background()
		root := t.TempDir()
		in := filepath.Join(root, "input")
		out := filepath.Join(root, "output")
		So(os.Mkdir(in, 0o755), ShouldBeNil)
		writeFiles(t, in, map[string]string{
			"b_video.json":  videoManifest,
			"d_second.json": secondVideo,
			"a_cam.json":    imageManifest,
			"broken.json":   "{",
		})

		cfg := &batch.Config{
			InputDir:            in,
			OutputDir:           out,
			LogFile:             batch.DefaultLogFile,
			SimilarityThreshold: 0.75,
			MergeUnreadable:     true,
		}

		Convey("A stale log is replaced", func() {
			So(os.MkdirAll(out, 0o755), ShouldBeNil)
			So(os.WriteFile(filepath.Join(out, batch.DefaultLogFile), []byte("stale\n"), 0o600), ShouldBeNil)

			summary, err := batch.Run(ctx, cfg)
			So(err, ShouldBeNil)

			vlog, err := vehiclelog.Open(summary.LogPath)
			So(err, ShouldBeNil)
			rows, err := vlog.Rows(ctx)
			So(err, ShouldBeNil)
			So(rows, ShouldResemble, []model.Row{
				{Timestamp: "00:00:00.000", Plates: "KA01AB1234", VehicleCount: 1, Condition: model.Clear},
				{Timestamp: "00:00:00.040", Plates: "MH12XY9876", VehicleCount: 1, Condition: model.Clear},
				{Timestamp: "00:00:00.000", Plates: "KA01AB1234", VehicleCount: 1, Condition: model.Clear},
				{Timestamp: "Image: cam.png", Plates: "ABC123, XYZ789", VehicleCount: 2, Condition: model.Lowlight},
			})
		})

		Convey("The summary counts distinct plates across files", func() {
			summary, err := batch.Run(ctx, cfg)
			So(err, ShouldBeNil)
			So(summary.Files, ShouldHaveLength, 4)
			So(summary.Failed(), ShouldEqual, 1)
			So(summary.UniquePlates(), ShouldEqual, 4)
			So(summary.Frequency("KA01AB1234"), ShouldEqual, 2)
			So(summary.Frequency("ABC123"), ShouldEqual, 1)
			So(errors.Is(summary.Files[1].Err, vision.ErrManifest), ShouldBeTrue)

			var buf bytes.Buffer
			summary.Print(&buf)
			text := buf.String()
			So(text, ShouldContainSubstring, "[DONE] b_video.json - Found 2 unique vehicles")
			So(text, ShouldContainSubstring, "[FAILED] broken.json")
			So(text, ShouldContainSubstring, "Total Unique Vehicles Detected (including UNREADABLE): 4")
			So(text, ShouldContainSubstring, "KA01AB1234: 2 times")
			So(text, ShouldContainSubstring, "[COMPLETE] All data logged to: "+filepath.Join(out, batch.DefaultLogFile))
		})

		Convey("A cancelled context stops the run", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := batch.Run(cctx, cfg)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestRunRemote(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		root := t.TempDir()
		svc := service.New(
			service.WithDirs(filepath.Join(root, "uploads"), filepath.Join(root, "output")),
			service.WithWorkerCount(2),
			service.WithQueueSize(8),
		)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		Reset(srv.Close)

		in := filepath.Join(root, "input")
		So(os.Mkdir(in, 0o755), ShouldBeNil)
		writeFiles(t, in, map[string]string{
			"b_video.json": videoManifest,
			"a_cam.json":   imageManifest,
		})

		cfg := &batch.Config{
			InputDir:     in,
			BaseURL:      srv.URL,
			Workers:      2,
			Timeout:      5 * time.Second,
			PollInterval: 10 * time.Millisecond,
		}

		Convey("Every file is uploaded and reported in order", func() {
			summary, err := batch.Run(ctx, cfg)
			So(err, ShouldBeNil)
			So(summary.Files, ShouldHaveLength, 2)
			So(summary.Failed(), ShouldEqual, 0)
			So(summary.Files[0].Name, ShouldEqual, "b_video.json")
			So(summary.Files[0].Plates, ShouldResemble, []string{"KA01AB1234", "MH12XY9876"})
			So(summary.Files[0].Vehicles, ShouldEqual, 2)
			So(summary.Files[1].Name, ShouldEqual, "a_cam.json")
			So(summary.Files[1].Vehicles, ShouldEqual, 2)
			So(summary.UniquePlates(), ShouldEqual, 4)
		})

		Convey("Rejected uploads are reported per file", func() {
			writeFiles(t, in, map[string]string{"c_broken.json": "{"})
			summary, err := batch.Run(ctx, cfg)
			So(err, ShouldBeNil)
			So(summary.Failed(), ShouldEqual, 1)
			So(summary.Files[1].Name, ShouldEqual, "c_broken.json")
			So(summary.Files[1].Err, ShouldNotBeNil)
		})

		Convey("An unreachable service fails fast", func() {
			cfg.BaseURL = "http://127.0.0.1:1"
			_, err := batch.Run(ctx, cfg)
			So(err, ShouldNotBeNil)
		})
	})
}
