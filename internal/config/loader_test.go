package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/platecount/internal/config"
)

var configEnvVars = []string{
	"PLATECOUNT_CONFIG",
	"PLATECOUNT_ADDR",
	"PLATECOUNT_QUEUE_SIZE",
	"PLATECOUNT_WORKER_COUNT",
	"PLATECOUNT_DEDUPE_SIZE",
	"PLATECOUNT_JOB_TIMEOUT",
	"PLATECOUNT_SIMILARITY_THRESHOLD",
	"PLATECOUNT_MERGE_UNREADABLE",
	"PLATECOUNT_STORE_DRIVER",
	"PLATECOUNT_POSTGRES_DSN",
	"PLATECOUNT_LOG_FORMAT",
	"PLATECOUNT_MAX_UPLOAD_MB",
	"PLATECOUNT_DETECTOR_URL",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		convey.Reset(clearConfigEnvVars)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New(ctx))
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PLATECOUNT_ADDR", ":8080")
			_ = os.Setenv("PLATECOUNT_QUEUE_SIZE", "10")
			_ = os.Setenv("PLATECOUNT_WORKER_COUNT", "3")
			_ = os.Setenv("PLATECOUNT_JOB_TIMEOUT", "90s")
			_ = os.Setenv("PLATECOUNT_SIMILARITY_THRESHOLD", "0.8")
			_ = os.Setenv("PLATECOUNT_MERGE_UNREADABLE", "false")
			_ = os.Setenv("PLATECOUNT_DETECTOR_URL", "http://detector:9000/detect")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.JobTimeout, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.SimilarityThreshold, convey.ShouldEqual, 0.8)
				convey.So(cfg.MergeUnreadable, convey.ShouldBeFalse)
				convey.So(cfg.DetectorURL, convey.ShouldEqual, "http://detector:9000/detect")
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			path := writeConfigFile(t, `
addr: ":9090"
queue_size: 32
worker_count: 4
store_driver: sqlite
sqlite_path: /var/lib/platecount/jobs.db
job_timeout: 10m
log_format: json
`)
			_ = os.Setenv("PLATECOUNT_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 32)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/var/lib/platecount/jobs.db")
				convey.So(cfg.JobTimeout, convey.ShouldEqual, 10*time.Minute)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.UploadDir, convey.ShouldEqual, "uploads")
				convey.So(cfg.StreamMaxFrames, convey.ShouldEqual, 100)
			})

			convey.Convey("Then environment variables override file values", func() {
				_ = os.Setenv("PLATECOUNT_ADDR", ":8080")
				_ = os.Setenv("PLATECOUNT_WORKER_COUNT", "8")

				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 8)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 32)
			})
		})

		convey.Convey("When the file is invalid YAML", func() {
			_ = os.Setenv("PLATECOUNT_CONFIG", writeConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_ = os.Setenv("PLATECOUNT_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a numeric variable is not a number", func() {
			_ = os.Setenv("PLATECOUNT_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When settings are out of range", func() {
			cases := map[string]string{
				"PLATECOUNT_QUEUE_SIZE":           "0",
				"PLATECOUNT_WORKER_COUNT":         "-1",
				"PLATECOUNT_SIMILARITY_THRESHOLD": "1.5",
				"PLATECOUNT_MAX_UPLOAD_MB":        "0",
				"PLATECOUNT_LOG_FORMAT":           "xml",
				"PLATECOUNT_STORE_DRIVER":         "mongo",
				"PLATECOUNT_ADDR":                 "",
			}
			for key, val := range cases {
				clearConfigEnvVars()
				_ = os.Setenv(key, val)

				cfg, err := config.Load(ctx)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			}
		})

		convey.Convey("When the postgres store has no DSN", func() {
			_ = os.Setenv("PLATECOUNT_STORE_DRIVER", "postgres")

			_, err := config.Load(ctx)

			convey.Convey("Then validation names the missing setting", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "postgres_dsn")
			})

			convey.Convey("Then providing one fixes it", func() {
				_ = os.Setenv("PLATECOUNT_POSTGRES_DSN", "postgres://localhost/platecount")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.PostgresDSN, convey.ShouldEqual, "postgres://localhost/platecount")
			})
		})
	})
}
