// Package simulate scripts the head and device poses a user would produce
// while walking through a capture session. Scripts drive the offline
// simulator and the service integration tests.
package simulate

import (
	"math"
	"time"

	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/model"
)

// wobblePeriod is the period of the sinusoidal jitter added to held poses.
const wobblePeriod = 700 * time.Millisecond

// Pose is what the sensors report while a segment is active. A nil Head
// means the face is out of frame.
type Pose struct {
	Head   *model.HeadPoseSample
	Device model.DeviceOrientationSample
}

// Segment holds a pose for a duration. Wobble adds a sinusoidal offset of
// up to Wobble degrees to head yaw and device pitch.
type Segment struct {
	Duration time.Duration
	Pose     Pose
	Wobble   float64
}

// Timeline is a sequence of segments. The last segment is held forever.
type Timeline []Segment

// Duration returns the total length of all segments.
func (t Timeline) Duration() time.Duration {
	var d time.Duration
	for _, s := range t {
		d += s.Duration
	}
	return d
}

// At returns the pose at offset into the timeline. An empty timeline
// reports no face and a flat device.
func (t Timeline) At(offset time.Duration) Pose {
	if len(t) == 0 {
		return Pose{}
	}
	seg := t[len(t)-1]
	segStart := t.Duration() - seg.Duration
	var elapsed time.Duration
	for _, s := range t {
		if offset < elapsed+s.Duration {
			seg, segStart = s, elapsed
			break
		}
		elapsed += s.Duration
	}
	return seg.sample(offset - segStart)
}

func (s Segment) sample(into time.Duration) Pose {
	p := s.Pose
	if p.Head != nil {
		h := *p.Head
		p.Head = &h
	}
	if s.Wobble == 0 {
		return p
	}
	w := s.Wobble * math.Sin(2*math.Pi*float64(into)/float64(wobblePeriod))
	if p.Head != nil {
		p.Head.Yaw += w
	}
	p.Device.Pitch += w
	return p
}

// Hold returns a segment with the ideal pose for a.
func Hold(a angle.Index, d time.Duration) Segment {
	return Segment{Duration: d, Pose: IdealPose(a)}
}

// Away returns a segment with the face out of frame and the device upright.
func Away(d time.Duration) Segment {
	return Segment{Duration: d}
}

// Turn returns a segment with the ideal pose for a rotated by yaw degrees.
func Turn(a angle.Index, yaw float64, d time.Duration) Segment {
	p := IdealPose(a)
	if p.Head != nil {
		p.Head.Yaw += yaw
	}
	return Segment{Duration: d, Pose: p}
}

// IdealPose returns a pose centred on the target of a. Face angles look at
// the lens with the phone upright. Device-only angles report no face and
// tilt the phone to the target pitch.
func IdealPose(a angle.Index) Pose {
	spec, err := angle.Get(a)
	if err != nil {
		return Pose{}
	}
	if !spec.RequiresFaceOnScreen {
		return Pose{Device: model.DeviceOrientationSample{Pitch: spec.TargetPitch}}
	}
	return Pose{Head: &model.HeadPoseSample{
		Pitch:         spec.TargetPitch,
		Yaw:           spec.TargetYaw,
		TrackingState: model.TrackingNormal,
	}}
}
