package service

import (
	"time"

	"github.com/okian/posecap/internal/adapters/feedback"
	"github.com/okian/posecap/internal/adapters/mq/worker"
	"github.com/okian/posecap/internal/adapters/repository"
	"github.com/okian/posecap/internal/adapters/sensors"
	"github.com/okian/posecap/internal/domain/capture"
	"github.com/okian/posecap/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the orchestrator time source.
func WithClock(c capture.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithReadings sets the sensor slots the loop reads.
func WithReadings(r *sensors.Readings) Option {
	return func(s *Service) {
		if r != nil {
			s.readings = r
		}
	}
}

// WithSource sets the sensor source started and stopped with the service.
func WithSource(src Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithCamera sets the camera used by the capture worker.
func WithCamera(c worker.Camera) Option {
	return func(s *Service) {
		if c != nil {
			s.camera = c
		}
	}
}

// WithStore sets the session store. Closing it is left to the caller.
func WithStore(st repository.SessionStore) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithHub streams feedback to websocket clients. The service runs the hub.
func WithHub(h *feedback.Hub) Option {
	return func(s *Service) {
		s.hub = h
	}
}

// WithSink adds a feedback sink next to the hub and the log sink.
func WithSink(sink feedback.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithTickInterval sets the validation cadence.
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithCountdownCheckInterval sets how often an armed countdown is re-checked.
func WithCountdownCheckInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// WithCountdown sets the countdown length. Values under a second are ignored.
func WithCountdown(d time.Duration) Option {
	return func(s *Service) {
		if d >= time.Second {
			s.countdown = d
		}
	}
}

// WithStabilityThreshold sets how long a pose must stay valid before it locks.
func WithStabilityThreshold(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.stabilityThreshold = d
		}
	}
}

// WithMovementTolerance sets the countdown movement tolerance in degrees.
func WithMovementTolerance(deg float64) Option {
	return func(s *Service) {
		if deg > 0 {
			s.movementTolerance = deg
		}
	}
}

// WithQueueSize sets the maximum number of pending commands.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithCaptureTimeout bounds a single camera call.
func WithCaptureTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.captureTimeout = d
		}
	}
}
