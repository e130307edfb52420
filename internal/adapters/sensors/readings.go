package sensors

import (
	"time"

	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/pkg/metrics"
)

// DefaultHeadPoseMaxAge is how long a head pose stays usable without a refresh.
const DefaultHeadPoseMaxAge = 250 * time.Millisecond

// Sensor names used in metrics labels.
const (
	SensorHeadPose    = "head_pose"
	SensorOrientation = "orientation"
)

// Readings is the pair of slots a source publishes into. It satisfies the
// head-pose and device-orientation providers the orchestrator reads.
type Readings struct {
	head      *Slot[model.HeadPoseSample]
	orient    *Slot[model.DeviceOrientationSample]
	supported bool
	now       func() time.Time
}

// ReadingsOption configures Readings.
type ReadingsOption func(*readingsConfig)

type readingsConfig struct {
	headMaxAge time.Duration
	now        func() time.Time
	supported  bool
}

// WithHeadPoseMaxAge sets the head-pose staleness window.
func WithHeadPoseMaxAge(d time.Duration) ReadingsOption {
	return func(c *readingsConfig) {
		if d > 0 {
			c.headMaxAge = d
		}
	}
}

// WithNow sets the time source used for stamping and staleness.
func WithNow(now func() time.Time) ReadingsOption {
	return func(c *readingsConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithHeadTrackingSupported marks whether the device can track heads at all.
func WithHeadTrackingSupported(ok bool) ReadingsOption {
	return func(c *readingsConfig) {
		c.supported = ok
	}
}

// NewReadings creates empty Readings.
func NewReadings(opts ...ReadingsOption) *Readings {
	cfg := readingsConfig{headMaxAge: DefaultHeadPoseMaxAge, now: time.Now, supported: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Readings{
		head:      NewSlot[model.HeadPoseSample](cfg.headMaxAge, cfg.now),
		orient:    NewSlot[model.DeviceOrientationSample](0, cfg.now),
		supported: cfg.supported,
		now:       cfg.now,
	}
}

// PublishHeadPose stores s. A lost-tracking sample clears the slot instead.
func (r *Readings) PublishHeadPose(s model.HeadPoseSample) {
	metrics.RecordSensorSample(SensorHeadPose)
	if s.TrackingState == model.TrackingLost {
		r.head.Clear()
		return
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = r.now()
	}
	r.head.Store(s)
}

// ClearHeadPose drops the current head pose.
func (r *Readings) ClearHeadPose() { r.head.Clear() }

// PublishOrientation stores s.
func (r *Readings) PublishOrientation(s model.DeviceOrientationSample) {
	metrics.RecordSensorSample(SensorOrientation)
	if s.Timestamp.IsZero() {
		s.Timestamp = r.now()
	}
	r.orient.Store(s)
}

// CurrentHeadPose returns the head pose if it is fresh.
func (r *Readings) CurrentHeadPose() (model.HeadPoseSample, bool) { return r.head.Load() }

// IsTracking reports whether a fresh head pose exists.
func (r *Readings) IsTracking() bool {
	_, ok := r.head.Load()
	return ok
}

// IsSupported reports whether head tracking is available on this device.
func (r *Readings) IsSupported() bool { return r.supported }

// CurrentOrientation returns the latest device orientation.
func (r *Readings) CurrentOrientation() (model.DeviceOrientationSample, bool) {
	return r.orient.Load()
}

// IsAvailable reports whether the motion sensor has produced a sample.
func (r *Readings) IsAvailable() bool {
	_, ok := r.orient.Load()
	return ok
}
