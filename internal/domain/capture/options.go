package capture

import (
	"time"

	"github.com/okian/posecap/internal/domain/validation"
	"github.com/okian/posecap/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithEngine sets the validation engine.
func WithEngine(e *validation.Engine) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.engine = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCountdown sets how long the countdown runs before capture.
func WithCountdown(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= time.Second {
			o.countdownSeconds = int(d / time.Second)
		}
	}
}

// WithMovementTolerance sets the maximum pitch or yaw drift from the locked
// pose, in degrees, tolerated during a countdown.
func WithMovementTolerance(deg float64) Option {
	return func(o *Orchestrator) {
		if deg > 0 {
			o.movementTolerance = deg
		}
	}
}
