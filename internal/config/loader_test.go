package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/posecap/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.TickIntervalMS, convey.ShouldEqual, 66)
				convey.So(cfg.CommandQueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.SensorSource, convey.ShouldEqual, config.SourceScripted)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("POSECAP_ADDR", ":8080")
			_ = os.Setenv("POSECAP_TICK_INTERVAL_MS", "50")
			_ = os.Setenv("POSECAP_MOVEMENT_TOLERANCE_DEG", "6.5")
			_ = os.Setenv("POSECAP_SENSOR_SOURCE", "mqtt")
			_ = os.Setenv("POSECAP_MQTT_BROKER", "tcp://broker:1883")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.TickIntervalMS, convey.ShouldEqual, 50)
				convey.So(cfg.MovementToleranceDeg, convey.ShouldEqual, 6.5)
				convey.So(cfg.SensorSource, convey.ShouldEqual, config.SourceMQTT)
				convey.So(cfg.MQTTBroker, convey.ShouldEqual, "tcp://broker:1883")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
countdown_seconds: 5
stability_threshold_ms: 800
store_path: ":memory:"
`)
			_ = os.Setenv("POSECAP_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep defaults elsewhere", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.CountdownSeconds, convey.ShouldEqual, 5)
				convey.So(cfg.StabilityThresholdMS, convey.ShouldEqual, 800)
				convey.So(cfg.StorePath, convey.ShouldEqual, ":memory:")
				convey.So(cfg.TickIntervalMS, convey.ShouldEqual, 66)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
countdown_seconds: 5
`)
			_ = os.Setenv("POSECAP_CONFIG", tmpFile)
			_ = os.Setenv("POSECAP_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.CountdownSeconds, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("POSECAP_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("POSECAP_CONFIG", "/non/existent/posecap.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("POSECAP_TICK_INTERVAL_MS", "fast")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown sensor source", func() {
			_ = os.Setenv("POSECAP_SENSOR_SOURCE", "bluetooth")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "sensor_source")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with YAML file containing an empty addr", func() {
			tmpFile := createTempConfigFile(t, `
# comments are fine
addr: ""
`)
			_ = os.Setenv("POSECAP_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return validation error for empty addr", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"POSECAP_CONFIG",
		"POSECAP_ADDR",
		"POSECAP_TICK_INTERVAL_MS",
		"POSECAP_MOVEMENT_TOLERANCE_DEG",
		"POSECAP_SENSOR_SOURCE",
		"POSECAP_MQTT_BROKER",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "posecap-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpFile.Name()
}
