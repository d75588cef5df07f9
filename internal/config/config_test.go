package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/okian/gridreplay/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DBPath, convey.ShouldEqual, "gridreplay.db")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.DefaultSessionID, convey.ShouldEqual, "bahrain_demo")
			convey.So(cfg.OpenF1BaseURL, convey.ShouldEqual, "https://api.openf1.org/v1")
			convey.So(cfg.OpenF1Timeout(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.IngestLimitLaps, convey.ShouldEqual, 500)
			convey.So(cfg.IngestLimitPositions, convey.ShouldEqual, 2000)
			convey.So(cfg.IngestLimitPits, convey.ShouldEqual, 2000)
		})

		convey.Convey("And the defaults should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
