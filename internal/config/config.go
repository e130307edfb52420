// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"time"
)

// Sensor sources.
const (
	SourceScripted = "scripted"
	SourceMQTT     = "mqtt"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// TickIntervalMS is the validation cadence; 66ms is roughly 15 Hz.
	TickIntervalMS int `koanf:"tick_interval_ms"`

	// CountdownCheckIntervalMS is how often a running countdown is re-checked.
	CountdownCheckIntervalMS int `koanf:"countdown_check_interval_ms"`

	CountdownSeconds     int     `koanf:"countdown_seconds"`
	StabilityThresholdMS int     `koanf:"stability_threshold_ms"`
	MovementToleranceDeg float64 `koanf:"movement_tolerance_deg"`

	// HeadPoseMaxAgeMS is how long a head pose stays usable without a refresh.
	HeadPoseMaxAgeMS int `koanf:"head_pose_max_age_ms"`

	// CommandQueueSize bounds the queue of control commands.
	CommandQueueSize int `koanf:"command_queue_size"`

	// SensorSource is "scripted" or "mqtt". Scenario names the script
	// played by the scripted source.
	SensorSource     string `koanf:"sensor_source"`
	Scenario         string `koanf:"scenario"`
	MQTTBroker       string `koanf:"mqtt_broker"`
	MQTTClientID     string `koanf:"mqtt_client_id"`
	TopicHeadPose    string `koanf:"topic_head_pose"`
	TopicOrientation string `koanf:"topic_orientation"`

	// StorePath is the SQLite file; ":memory:" keeps sessions in memory.
	StorePath string `koanf:"store_path"`

	CameraLatencyMS int `koanf:"camera_latency_ms"`

	// FeedbackBuffer is the websocket broadcast and per-client buffer size.
	FeedbackBuffer int `koanf:"feedback_buffer"`

	// MetricsEnabled turns Prometheus recording on; MetricsRefreshMS is how
	// often the polled gauges are refreshed.
	MetricsEnabled   bool `koanf:"metrics_enabled"`
	MetricsRefreshMS int  `koanf:"metrics_refresh_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		TickIntervalMS:           66,
		CountdownCheckIntervalMS: 100,
		CountdownSeconds:         3,
		StabilityThresholdMS:     500,
		MovementToleranceDeg:     8,
		HeadPoseMaxAgeMS:         250,
		CommandQueueSize:         64,
		SensorSource:             SourceScripted,
		Scenario:                 "steady",
		MQTTBroker:               "tcp://localhost:1883",
		MQTTClientID:             "posecap",
		TopicHeadPose:            "posecap/head_pose",
		TopicOrientation:         "posecap/orientation",
		StorePath:                "posecap.db",
		CameraLatencyMS:          150,
		FeedbackBuffer:           64,
		MetricsEnabled:           true,
		MetricsRefreshMS:         10000,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("addr must not be empty: %w", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("log_format %q: %w", c.LogFormat, ErrInvalidConfig)
	case c.TickIntervalMS <= 0:
		return fmt.Errorf("tick_interval_ms must be positive: %w", ErrInvalidConfig)
	case c.CountdownCheckIntervalMS <= 0:
		return fmt.Errorf("countdown_check_interval_ms must be positive: %w", ErrInvalidConfig)
	case c.CountdownSeconds < 1:
		return fmt.Errorf("countdown_seconds must be at least 1: %w", ErrInvalidConfig)
	case c.StabilityThresholdMS < 0:
		return fmt.Errorf("stability_threshold_ms must not be negative: %w", ErrInvalidConfig)
	case c.MovementToleranceDeg <= 0:
		return fmt.Errorf("movement_tolerance_deg must be positive: %w", ErrInvalidConfig)
	case c.HeadPoseMaxAgeMS <= 0:
		return fmt.Errorf("head_pose_max_age_ms must be positive: %w", ErrInvalidConfig)
	case c.CommandQueueSize <= 0:
		return fmt.Errorf("command_queue_size must be positive: %w", ErrInvalidConfig)
	case c.SensorSource != SourceScripted && c.SensorSource != SourceMQTT:
		return fmt.Errorf("sensor_source %q: %w", c.SensorSource, ErrInvalidConfig)
	case c.SensorSource == SourceScripted && c.Scenario == "":
		return fmt.Errorf("scenario is required for the scripted source: %w", ErrInvalidConfig)
	case c.SensorSource == SourceMQTT && c.MQTTBroker == "":
		return fmt.Errorf("mqtt_broker is required for the mqtt source: %w", ErrInvalidConfig)
	case c.StorePath == "":
		return fmt.Errorf("store_path must not be empty: %w", ErrInvalidConfig)
	case c.CameraLatencyMS < 0:
		return fmt.Errorf("camera_latency_ms must not be negative: %w", ErrInvalidConfig)
	case c.FeedbackBuffer <= 0:
		return fmt.Errorf("feedback_buffer must be positive: %w", ErrInvalidConfig)
	case c.MetricsRefreshMS <= 0:
		return fmt.Errorf("metrics_refresh_ms must be positive: %w", ErrInvalidConfig)
	}
	return nil
}

// TickInterval returns TickIntervalMS as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// CountdownCheckInterval returns CountdownCheckIntervalMS as a duration.
func (c *Config) CountdownCheckInterval() time.Duration {
	return time.Duration(c.CountdownCheckIntervalMS) * time.Millisecond
}

// StabilityThreshold returns StabilityThresholdMS as a duration.
func (c *Config) StabilityThreshold() time.Duration {
	return time.Duration(c.StabilityThresholdMS) * time.Millisecond
}

// HeadPoseMaxAge returns HeadPoseMaxAgeMS as a duration.
func (c *Config) HeadPoseMaxAge() time.Duration {
	return time.Duration(c.HeadPoseMaxAgeMS) * time.Millisecond
}

// CameraLatency returns CameraLatencyMS as a duration.
func (c *Config) CameraLatency() time.Duration {
	return time.Duration(c.CameraLatencyMS) * time.Millisecond
}

// MetricsRefresh returns MetricsRefreshMS as a duration.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}
