package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/okian/posecap/internal/adapters/http/api"
	"github.com/okian/posecap/internal/adapters/http/swagger"
	"github.com/okian/posecap/internal/adapters/sensors"
	app "github.com/okian/posecap/internal/app"
	"github.com/okian/posecap/internal/config"
	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/simulate"
	"github.com/okian/posecap/pkg/logger"
	"github.com/okian/posecap/pkg/metrics"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("POSECAP_ADDR", ":8080")
			_ = os.Setenv("POSECAP_COMMAND_QUEUE_SIZE", "16")
			_ = os.Setenv("POSECAP_SCENARIO", "flinch")
			_ = os.Setenv("POSECAP_METRICS_REFRESH_MS", "2000")
			defer func() {
				_ = os.Unsetenv("POSECAP_METRICS_REFRESH_MS")
				_ = os.Unsetenv("POSECAP_ADDR")
				_ = os.Unsetenv("POSECAP_COMMAND_QUEUE_SIZE")
				_ = os.Unsetenv("POSECAP_SCENARIO")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.CommandQueueSize, convey.ShouldEqual, 16)
				convey.So(cfg.Scenario, convey.ShouldEqual, "flinch")
				convey.So(cfg.MetricsRefresh(), convey.ShouldEqual, 2*time.Second)
			})
		})

		convey.Convey("When building the sensor source", func() {
			readings := sensors.NewReadings()
			current := func() angle.Index { return angle.Front }
			cfg := config.New()

			convey.Convey("Then the scripted source is a player", func() {
				src, err := newSource(cfg, readings, current, logger.Nop())
				convey.So(err, convey.ShouldBeNil)
				_, ok := src.(*simulate.Player)
				convey.So(ok, convey.ShouldBeTrue)
			})

			convey.Convey("Then an unknown scenario is rejected", func() {
				cfg.Scenario = "moonwalk"
				_, err := newSource(cfg, readings, current, logger.Nop())
				convey.So(err, convey.ShouldNotBeNil)
			})

			convey.Convey("Then the mqtt source is built without connecting", func() {
				cfg.SensorSource = config.SourceMQTT
				src, err := newSource(cfg, readings, current, logger.Nop())
				convey.So(err, convey.ShouldBeNil)
				_, ok := src.(*sensors.MQTTSource)
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When testing HTTP server creation", func() {
			svc := app.New()
			mux := http.NewServeMux()
			swagger.Register(context.Background(), mux)
			api.NewServer(svc, svc, nil).Register(context.Background(), mux)

			convey.Convey("Then health and docs routes respond", func() {
				for _, path := range []string{"/healthz", "/api-docs", "/openapi.yaml", "/stats"} {
					rec := httptest.NewRecorder()
					mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
					convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("Then session routes report the stopped service", func() {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		convey.Convey("When testing system metrics", func() {
			convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
			convey.So(metrics.GetRegistry(), convey.ShouldNotBeNil)
		})
	})
}
