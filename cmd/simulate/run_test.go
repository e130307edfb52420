package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/capture"
	"github.com/okian/posecap/internal/simulate"
	"github.com/okian/posecap/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestRun(t *testing.T) {
	convey.Convey("Given an offline simulator config", t, func() {
		cfg := Config{
			Scenario:  "steady",
			Settle:    50 * time.Millisecond,
			Countdown: time.Second,
			Timeout:   45 * time.Second,
			StorePath: ":memory:",
		}
		var out bytes.Buffer

		convey.Convey("When the steady scenario runs", func() {
			err := Run(context.Background(), cfg, &out, logger.Nop())

			convey.Convey("Then the session completes and is reported", func() {
				convey.So(err, convey.ShouldBeNil)
				var report Report
				convey.So(json.Unmarshal(out.Bytes(), &report), convey.ShouldBeNil)
				convey.So(report.Mode, convey.ShouldEqual, "local")
				convey.So(report.Scenario, convey.ShouldEqual, "steady")
				convey.So(report.View.State, convey.ShouldEqual, capture.StateComplete)
				convey.So(report.View.Summary.Captured, convey.ShouldEqual, angle.Count)
				convey.So(report.Feedback["captured"], convey.ShouldEqual, angle.Count)
			})
		})

		convey.Convey("When the scenario is unknown", func() {
			cfg.Scenario = "moonwalk"
			err := Run(context.Background(), cfg, &out, logger.Nop())
			convey.So(errors.Is(err, simulate.ErrUnknownScenario), convey.ShouldBeTrue)
			convey.So(out.Len(), convey.ShouldEqual, 0)
		})

		convey.Convey("When the deadline is too short", func() {
			cfg.Timeout = 300 * time.Millisecond
			err := Run(context.Background(), cfg, &out, logger.Nop())

			convey.Convey("Then the partial report is still written", func() {
				convey.So(errors.Is(err, ErrIncomplete), convey.ShouldBeTrue)
				var report Report
				convey.So(json.Unmarshal(out.Bytes(), &report), convey.ShouldBeNil)
				convey.So(report.View.State, convey.ShouldNotEqual, capture.StateComplete)
			})
		})
	})
}
