package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/posecap/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.TickInterval(), convey.ShouldEqual, 66*time.Millisecond)
			convey.So(cfg.CountdownCheckInterval(), convey.ShouldEqual, 100*time.Millisecond)
			convey.So(cfg.CountdownSeconds, convey.ShouldEqual, 3)
			convey.So(cfg.StabilityThreshold(), convey.ShouldEqual, 500*time.Millisecond)
			convey.So(cfg.MovementToleranceDeg, convey.ShouldEqual, 8.0)
			convey.So(cfg.HeadPoseMaxAge(), convey.ShouldEqual, 250*time.Millisecond)
			convey.So(cfg.SensorSource, convey.ShouldEqual, config.SourceScripted)
			convey.So(cfg.Scenario, convey.ShouldEqual, "steady")
			convey.So(cfg.CameraLatency(), convey.ShouldEqual, 150*time.Millisecond)
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.MetricsRefresh(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then a zero stability threshold is accepted", func() {
			cfg.StabilityThresholdMS = 0
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			convey.So(cfg.StabilityThreshold(), convey.ShouldEqual, time.Duration(0))
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		cases := map[string]func(*config.Config){
			"empty addr":             func(c *config.Config) { c.Addr = "" },
			"unknown log format":     func(c *config.Config) { c.LogFormat = "xml" },
			"zero tick interval":     func(c *config.Config) { c.TickIntervalMS = 0 },
			"zero countdown check":   func(c *config.Config) { c.CountdownCheckIntervalMS = 0 },
			"zero countdown":         func(c *config.Config) { c.CountdownSeconds = 0 },
			"negative stability":     func(c *config.Config) { c.StabilityThresholdMS = -1 },
			"zero movement":          func(c *config.Config) { c.MovementToleranceDeg = 0 },
			"zero head pose age":     func(c *config.Config) { c.HeadPoseMaxAgeMS = 0 },
			"zero queue":             func(c *config.Config) { c.CommandQueueSize = 0 },
			"unknown sensor source":  func(c *config.Config) { c.SensorSource = "bluetooth" },
			"mqtt without broker":    func(c *config.Config) { c.SensorSource = config.SourceMQTT; c.MQTTBroker = "" },
			"scripted, no scenario":  func(c *config.Config) { c.Scenario = "" },
			"empty store path":       func(c *config.Config) { c.StorePath = "" },
			"negative camera":        func(c *config.Config) { c.CameraLatencyMS = -5 },
			"zero feedback buffer":   func(c *config.Config) { c.FeedbackBuffer = 0 },
			"zero metrics refresh":   func(c *config.Config) { c.MetricsRefreshMS = 0 },
		}
		for name, mutate := range cases {
			convey.Convey("When it has "+name, func() {
				mutate(cfg)
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
