// Package stability measures how long the combined pose verdict has been continuously valid.
package stability

import "time"

// DefaultThreshold is how long a pose must stay valid before it counts as stable.
const DefaultThreshold = 500 * time.Millisecond

// State is the tracker output for one tick. A zero Start means no valid run is in progress.
type State struct {
	Start    time.Time
	Duration time.Duration
	IsStable bool
}

// Tracker converts a per-tick validity signal into a continuous-valid duration.
// It holds no state of its own; callers pass back the previous Start.
type Tracker struct {
	threshold time.Duration
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithThreshold overrides the stability threshold. Zero makes the first
// valid tick stable; negative values are ignored.
func WithThreshold(d time.Duration) Option {
	return func(t *Tracker) {
		if d >= 0 {
			t.threshold = d
		}
	}
}

// New creates a Tracker.
func New(opts ...Option) Tracker {
	t := Tracker{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Threshold returns the configured stability threshold.
func (t Tracker) Threshold() time.Duration {
	return t.threshold
}

// Update advances the tracker. Any invalid tick clears the run completely;
// there is no grace period.
func (t Tracker) Update(valid bool, prevStart, now time.Time) State {
	if !valid {
		return State{}
	}
	if prevStart.IsZero() || now.Before(prevStart) {
		return State{Start: now, IsStable: t.threshold <= 0}
	}
	d := now.Sub(prevStart)
	return State{Start: prevStart, Duration: d, IsStable: d >= t.threshold}
}
