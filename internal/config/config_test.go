package config_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/platecount/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":5000")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.JobTimeout, convey.ShouldEqual, 6000*time.Second)
			convey.So(cfg.SimilarityThreshold, convey.ShouldEqual, 0.75)
			convey.So(cfg.MergeUnreadable, convey.ShouldBeTrue)
			convey.So(cfg.LogFile, convey.ShouldEqual, "vehicle_log.csv")
			convey.So(cfg.MaxUploadBytes(), convey.ShouldEqual, int64(100*1024*1024))
			convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
			convey.So(cfg.StreamMaxFrames, convey.ShouldEqual, 100)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
