package validation

import (
	"math"
	"time"

	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/internal/domain/stability"
)

// Engine tunables.
const (
	// MissingPoseError is reported as the pitch error when no usable sample exists.
	MissingPoseError = 999.0

	// DefaultAdjustingThreshold is the minimum progress that still reads as Adjusting.
	DefaultAdjustingThreshold = 0.3
)

// Input bundles the samples available at tick time. Nil means absent.
type Input struct {
	Spec        angle.Spec
	HeadPose    *model.HeadPoseSample
	Orientation *model.DeviceOrientationSample
}

// Engine evaluates Input into a PoseValidation. It keeps no per-tick state:
// the previous stability start is passed in and returned in the verdict.
type Engine struct {
	stability          stability.Tracker
	adjustingThreshold float64
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithStabilityTracker sets the tracker used to derive IsStable.
func WithStabilityTracker(t stability.Tracker) Option {
	return func(e *Engine) {
		e.stability = t
	}
}

// WithAdjustingThreshold overrides the Adjusting/Invalid cut-off.
func WithAdjustingThreshold(th float64) Option {
	return func(e *Engine) {
		if th > 0 && th < 1 {
			e.adjustingThreshold = th
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		stability:          stability.New(),
		adjustingThreshold: DefaultAdjustingThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StabilityThreshold exposes the tracker threshold.
func (e *Engine) StabilityThreshold() time.Duration {
	return e.stability.Threshold()
}

// Evaluate produces the verdict for one tick.
func (e *Engine) Evaluate(in Input, prevStabilityStart, now time.Time) PoseValidation {
	spec := in.Spec
	v := PoseValidation{Angle: spec.Index, EvaluatedAt: now}

	// A sample that reports lost tracking is treated as no pose at all.
	head := in.HeadPose
	if head != nil && head.TrackingState == model.TrackingLost {
		head = nil
	}

	var orientationHint Hint
	switch {
	case head != nil:
		v.Orientation, orientationHint = e.fromHeadPose(spec, *head)
	case spec.RequiresFaceOnScreen:
		v.Orientation = OrientationValidation{
			Status:      Invalid(),
			Source:      SourceNone,
			TargetPitch: spec.TargetPitch,
			PitchError:  MissingPoseError,
		}
		orientationHint = HintShowFace
	case in.Orientation != nil:
		v.Orientation, orientationHint = e.fromDevice(spec, *in.Orientation)
	default:
		v.Orientation = OrientationValidation{
			Status:      Invalid(),
			Source:      SourceNone,
			TargetPitch: spec.TargetPitch,
			PitchError:  MissingPoseError,
		}
		orientationHint = HintNoSensor
	}

	var centerScore float64
	v.Detection, centerScore = e.detection(spec, head)

	st := e.stability.Update(v.CombinedValid(), prevStabilityStart, now)
	v.StabilityStart = st.Start
	v.StabilityDuration = st.Duration
	v.IsStable = st.IsStable

	v.Progress = e.blend(spec, v, centerScore)
	v.Hint = orientationHint
	if v.Hint == HintNone && !v.Detection.Status.IsValid() {
		v.Hint = HintCenter
	}
	return v
}

// axisResult is one evaluated axis.
type axisResult struct {
	err      float64
	tol      float64
	progress float64
	ok       bool
}

func evalAxis(err, tol float64) axisResult {
	abs := math.Abs(err)
	r := axisResult{err: err, tol: tol, ok: abs <= tol}
	if r.ok {
		r.progress = 1
		return r
	}
	r.progress = math.Max(0, 1-abs/(2*tol))
	return r
}

func (e *Engine) statusFor(axes ...axisResult) Status {
	worst := 1.0
	allOK := true
	for _, a := range axes {
		if !a.ok {
			allOK = false
			worst = math.Min(worst, a.progress)
		}
	}
	if allOK {
		return Valid()
	}
	if worst >= e.adjustingThreshold {
		return Adjusting(worst)
	}
	return Invalid()
}

func (e *Engine) fromHeadPose(spec angle.Spec, head model.HeadPoseSample) (OrientationValidation, Hint) {
	ov := OrientationValidation{
		Source:       SourceHead,
		CurrentPitch: head.Pitch,
		TargetPitch:  spec.TargetPitch,
		PitchError:   head.Pitch - spec.TargetPitch,
	}
	pitch := evalAxis(ov.PitchError, spec.PitchTolerance)
	axes := []axisResult{pitch}

	var yaw axisResult
	if spec.HasTargetYaw {
		ov.HasYaw = true
		ov.CurrentYaw = head.Yaw
		ov.TargetYaw = spec.TargetYaw
		ov.YawError = head.Yaw - spec.TargetYaw
		yaw = evalAxis(ov.YawError, spec.YawTolerance)
		axes = append(axes, yaw)
	}
	ov.Status = e.statusFor(axes...)

	hint := HintNone
	worst := 0.0
	if !pitch.ok {
		worst = math.Abs(pitch.err) / pitch.tol
		hint = HintLower
		if pitch.err < 0 {
			hint = HintRaise
		}
	}
	if spec.HasTargetYaw && !yaw.ok && math.Abs(yaw.err)/yaw.tol > worst {
		hint = HintTurnLeft
		if yaw.err < 0 {
			hint = HintTurnRight
		}
	}
	return ov, hint
}

func (e *Engine) fromDevice(spec angle.Spec, dev model.DeviceOrientationSample) (OrientationValidation, Hint) {
	signed := dev.Pitch - spec.TargetPitch
	ov := OrientationValidation{
		Source:       SourceDevice,
		CurrentPitch: dev.Pitch,
		TargetPitch:  spec.TargetPitch,
		PitchError:   math.Abs(signed),
	}
	pitch := evalAxis(signed, spec.PitchTolerance)
	ov.Status = e.statusFor(pitch)

	hint := HintNone
	if !pitch.ok {
		hint = HintLower
		if signed < 0 {
			hint = HintRaise
		}
	}
	return ov, hint
}

// detection returns the detection verdict and its centering score.
func (e *Engine) detection(spec angle.Spec, head *model.HeadPoseSample) (DetectionValidation, float64) {
	dv := DetectionValidation{Required: spec.RequiresFaceOnScreen, IsDetected: head != nil}
	if head != nil {
		dv.CenterOffset = head.CenterOffset
		dv.CenterDistance = head.CenterOffset.Norm()
	}

	if !spec.RequiresFaceOnScreen {
		dv.Status = Valid()
		return dv, 1
	}
	if head == nil {
		dv.Status = Invalid()
		return dv, 0
	}

	maxOffset := spec.CenteringMaxOffset
	if dv.CenterDistance <= maxOffset {
		dv.Status = Valid()
		return dv, 1
	}
	progress := 0.0
	if maxOffset > 0 {
		progress = math.Max(0, 1-dv.CenterDistance/maxOffset)
	}
	if progress >= e.adjustingThreshold {
		dv.Status = Adjusting(progress)
	} else {
		dv.Status = Invalid()
	}
	return dv, progress
}

// blend averages the available sub-scores into a feedback intensity.
func (e *Engine) blend(spec angle.Spec, v PoseValidation, centerScore float64) float64 {
	if v.IsReadyForCapture() {
		return 1
	}
	var scores []float64
	switch v.Orientation.Source {
	case SourceNone:
		scores = append(scores, 0)
	default:
		scores = append(scores, evalAxis(v.Orientation.PitchError, spec.PitchTolerance).progress)
		if v.Orientation.HasYaw {
			scores = append(scores, evalAxis(v.Orientation.YawError, spec.YawTolerance).progress)
		}
	}
	if spec.RequiresFaceOnScreen {
		scores = append(scores, centerScore)
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
