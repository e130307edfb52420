// Package capture drives the auto-capture state machine: it turns per-tick
// validation verdicts into lock, countdown and capture transitions for the
// active angle of a session.
package capture

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/internal/domain/session"
	"github.com/okian/posecap/internal/domain/validation"
	"github.com/okian/posecap/pkg/logger"
	"github.com/okian/posecap/pkg/metrics"
)

// Defaults for the countdown.
const (
	DefaultCountdownSeconds  = 3
	DefaultMovementTolerance = 8.0
)

// State is the orchestrator state.
type State string

const (
	StateInactive     State = "inactive"
	StateIdle         State = "idle"
	StateCountingDown State = "counting_down"
	StateCapturing    State = "capturing"
	StatePaused       State = "paused"
	StateComplete     State = "complete"
)

// HeadPoseProvider returns the latest head pose, if one is fresh.
type HeadPoseProvider interface {
	CurrentHeadPose() (model.HeadPoseSample, bool)
}

// OrientationProvider returns the latest device orientation, if the sensor runs.
type OrientationProvider interface {
	CurrentOrientation() (model.DeviceOrientationSample, bool)
}

// FeedbackSink receives feedback events. Emit must not block.
type FeedbackSink interface {
	Emit(e model.FeedbackEvent)
}

// Clock is the orchestrator time source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Request asks the camera for one photo. Token ties the result back to the
// attempt that produced it.
type Request struct {
	Token       uint64            `json:"token"`
	Angle       angle.Index       `json:"angle"`
	Mode        model.CaptureMode `json:"mode"`
	RequestedAt time.Time         `json:"requested_at"`
}

// View is a read-only summary of the orchestrator for status endpoints.
type View struct {
	State      State                      `json:"state"`
	SessionID  string                     `json:"session_id"`
	Angle      angle.Index                `json:"angle"`
	AngleName  string                     `json:"angle_name"`
	Remaining  int                        `json:"countdown_remaining,omitempty"`
	Validation *validation.PoseValidation `json:"validation,omitempty"`
	Summary    session.Summary            `json:"summary"`
}

type reading struct {
	head   *model.HeadPoseSample
	device *model.DeviceOrientationSample
}

type countdown struct {
	startedAt time.Time
	remaining int
	locked    *model.HeadPoseSample
}

type pending struct {
	req        Request
	validation validation.PoseValidation
	reading    reading
}

type nopSink struct{}

func (nopSink) Emit(model.FeedbackEvent) {}

// Orchestrator owns the session and the capture state machine. It is not
// safe for concurrent use; one loop goroutine drives every method.
type Orchestrator struct {
	engine *validation.Engine
	head   HeadPoseProvider
	orient OrientationProvider
	sink   FeedbackSink
	clock  Clock
	logger logger.Logger

	countdownSeconds  int
	movementTolerance float64

	session *session.Session
	state   State

	latest         validation.PoseValidation
	hasLatest      bool
	stabilityStart time.Time
	proximityStep  int

	cd        *countdown
	inflight  *pending
	nextToken uint64
}

// New creates an Orchestrator with a fresh, not yet started session.
func New(head HeadPoseProvider, orient OrientationProvider, sink FeedbackSink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:            validation.NewEngine(),
		head:              head,
		orient:            orient,
		sink:              sink,
		clock:             SystemClock{},
		logger:            logger.Nop(),
		countdownSeconds:  DefaultCountdownSeconds,
		movementTolerance: DefaultMovementTolerance,
		state:             StateInactive,
		proximityStep:     -1,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = nopSink{}
	}
	o.session = session.New(o.clock.Now())
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// CurrentAngle returns the active angle, or angle.Complete.
func (o *Orchestrator) CurrentAngle() angle.Index { return o.session.CurrentAngle() }

// Latest returns the validation published by the last tick.
func (o *Orchestrator) Latest() (validation.PoseValidation, bool) {
	return o.latest, o.hasLatest
}

// Session returns a snapshot of the owned session.
func (o *Orchestrator) Session() session.Snapshot { return o.session.Snapshot() }

// View summarises the orchestrator.
func (o *Orchestrator) View() View {
	cur := o.session.CurrentAngle()
	v := View{
		State:     o.state,
		SessionID: o.session.ID(),
		Angle:     cur,
		AngleName: cur.String(),
		Summary:   o.session.Summary(),
	}
	if o.cd != nil {
		v.Remaining = o.cd.remaining
	}
	if o.hasLatest {
		latest := o.latest
		v.Validation = &latest
	}
	return v
}

// StartSession begins capturing the current angle.
func (o *Orchestrator) StartSession(ctx context.Context) error {
	if o.state != StateInactive {
		return fmt.Errorf("start: %w", ErrSessionActive)
	}
	now := o.clock.Now()
	metrics.RecordSessionStarted()
	o.logger.Info(ctx, "session started", logger.String("session_id", o.session.ID()))
	o.enterAngle(ctx, now)
	return nil
}

// Tick evaluates the current samples, publishes the verdict and arms a
// countdown when the pose is ready. It reports false once the session is
// complete.
func (o *Orchestrator) Tick(ctx context.Context) (validation.PoseValidation, bool) {
	cur := o.session.CurrentAngle()
	if !cur.Valid() {
		return validation.PoseValidation{}, false
	}
	now := o.clock.Now()
	v, r := o.evaluate(cur, now)
	o.publish(v)

	metrics.UpdateValidationStatus(cur.String(), v.Status().Rank())
	metrics.UpdateStabilityDuration(v.StabilityDuration)

	if o.state == StateIdle {
		if v.IsReadyForCapture() {
			o.startCountdown(ctx, now, r)
		} else {
			o.emitProximity(v, now)
		}
	}
	return v, true
}

// CheckCountdown re-checks an armed countdown. It returns a Request once the
// countdown completes and the final re-validation passes.
func (o *Orchestrator) CheckCountdown(ctx context.Context) *Request {
	if o.state != StateCountingDown || o.cd == nil {
		return nil
	}
	now := o.clock.Now()
	if reason := o.countdownViolation(); reason != model.AbortNone {
		o.abort(ctx, reason, now)
		return nil
	}

	elapsed := now.Sub(o.cd.startedAt)
	if elapsed >= time.Duration(o.countdownSeconds)*time.Second {
		cur := o.session.CurrentAngle()
		v, r := o.evaluate(cur, now)
		o.publish(v)
		if !v.IsReadyForCapture() {
			o.abort(ctx, model.AbortValidationLost, now)
			return nil
		}
		return o.beginCapture(ctx, now, model.CaptureAuto, v, r)
	}

	remaining := o.countdownSeconds - int(elapsed/time.Second)
	if remaining < o.cd.remaining {
		o.cd.remaining = remaining
		o.emit(model.FeedbackEvent{Kind: model.FeedbackCountdown, Count: remaining}, now)
	}
	return nil
}

// ManualCapture requests a photo immediately, skipping the countdown.
// Refusals leave the state untouched.
func (o *Orchestrator) ManualCapture(ctx context.Context) (*Request, error) {
	switch o.state {
	case StateInactive:
		return nil, fmt.Errorf("manual capture: %w", ErrNotStarted)
	case StatePaused:
		return nil, fmt.Errorf("manual capture: %w", ErrPaused)
	case StateComplete:
		return nil, fmt.Errorf("manual capture: %w", ErrSessionComplete)
	case StateCapturing:
		return nil, fmt.Errorf("manual capture: %w", ErrCaptureInFlight)
	}

	cur := o.session.CurrentAngle()
	now := o.clock.Now()
	v, r := o.evaluate(cur, now)
	if spec := angle.MustGet(cur); spec.RequiresFaceOnScreen && !v.Detection.IsDetected {
		metrics.RecordManualRefusal()
		o.logger.Info(ctx, "manual capture refused", logger.String("angle", cur.String()))
		o.emit(model.FeedbackEvent{
			Kind:    model.FeedbackError,
			Reason:  model.AbortFaceNotDetected,
			Message: userMessages[ErrFaceNotDetected],
		}, now)
		return nil, fmt.Errorf("manual capture %s: %w", spec.Name, ErrFaceNotDetected)
	}
	return o.beginCapture(ctx, now, model.CaptureManual, v, r), nil
}

// FinishCapture delivers the camera outcome for the request with token.
// Results for superseded requests are discarded with ErrStaleCapture.
func (o *Orchestrator) FinishCapture(ctx context.Context, token uint64, img model.ImageHandle, captureErr error) error {
	p := o.inflight
	if p == nil || p.req.Token != token {
		o.logger.Debug(ctx, "discarding stale capture", logger.Any("token", token))
		return fmt.Errorf("capture %d: %w", token, ErrStaleCapture)
	}
	o.inflight = nil

	now := o.clock.Now()
	a := p.req.Angle
	metrics.RecordCaptureLatency(float64(now.Sub(p.req.RequestedAt).Milliseconds()))

	if captureErr == nil && img.IsZero() {
		captureErr = ErrEmptyImage
	}
	if captureErr != nil {
		metrics.RecordCapture(a.String(), string(p.req.Mode), "failed")
		o.logger.Warn(ctx, "capture failed", logger.String("angle", a.String()), logger.Error(captureErr))
		o.toIdle()
		o.emit(model.FeedbackEvent{
			Kind:    model.FeedbackError,
			Reason:  model.AbortCaptureFailed,
			Message: "The photo could not be taken, please try again",
		}, now)
		return nil
	}

	if err := o.session.RecordAttempt(a, true, now); err != nil {
		o.toIdle()
		return fmt.Errorf("record attempt: %w", err)
	}
	st := o.session.Stats(a)
	res := session.Result{
		Angle: a,
		Image: img,
		Metadata: session.Metadata{
			Mode:           p.req.Mode,
			CapturedAt:     now,
			Attempts:       st.Attempts,
			TimeSpent:      st.TimeSpent,
			PitchError:     p.validation.Orientation.PitchError,
			YawError:       p.validation.Orientation.YawError,
			CenterDistance: p.validation.Detection.CenterDistance,
			Progress:       p.validation.Progress,
			Device:         p.reading.device,
			HeadPose:       p.reading.head,
		},
	}
	if err := o.session.AddResult(res); err != nil {
		o.toIdle()
		return fmt.Errorf("store result: %w", err)
	}

	metrics.RecordCapture(a.String(), string(p.req.Mode), "success")
	o.logger.Info(ctx, "angle captured",
		logger.String("angle", a.String()),
		logger.String("mode", string(p.req.Mode)),
		logger.Int("attempts", st.Attempts),
		logger.String("image_id", img.ID))
	o.emitFor(a, model.FeedbackEvent{Kind: model.FeedbackCaptured, Progress: 1}, now)
	o.enterAngle(ctx, now)
	return nil
}

// Pause cancels any countdown or in-flight capture and stops arming new ones.
func (o *Orchestrator) Pause(ctx context.Context) error {
	switch o.state {
	case StateInactive:
		return fmt.Errorf("pause: %w", ErrNotStarted)
	case StatePaused:
		return fmt.Errorf("pause: %w", ErrPaused)
	case StateComplete:
		return fmt.Errorf("pause: %w", ErrSessionComplete)
	}
	o.cancelCountdown()
	o.inflight = nil
	o.stabilityStart = time.Time{}
	o.state = StatePaused
	o.logger.Info(ctx, "session paused")
	return nil
}

// Resume returns a paused session to Idle. Stability has to be earned again.
func (o *Orchestrator) Resume(ctx context.Context) error {
	if o.state != StatePaused {
		return fmt.Errorf("resume: %w", ErrNotPaused)
	}
	o.logger.Info(ctx, "session resumed")
	o.enterAngle(ctx, o.clock.Now())
	return nil
}

// Retake drops the result for a and makes the lowest missing angle current.
// Retaking an angle that has no result changes nothing.
func (o *Orchestrator) Retake(ctx context.Context, a angle.Index) error {
	if o.state == StateInactive {
		return fmt.Errorf("retake: %w", ErrNotStarted)
	}
	if _, ok := o.session.Result(a); a.Valid() && !ok {
		return nil
	}
	if err := o.session.RetakeAngle(a); err != nil {
		return err
	}
	o.cancelCountdown()
	o.inflight = nil
	o.logger.Info(ctx, "retaking angle", logger.String("angle", a.String()))
	if o.state == StatePaused {
		o.resetTick()
		return nil
	}
	o.enterAngle(ctx, o.clock.Now())
	return nil
}

// Reset discards the session and returns to Inactive with a fresh one.
func (o *Orchestrator) Reset(ctx context.Context) {
	o.cancelCountdown()
	o.inflight = nil
	o.session.Reset(o.clock.Now())
	o.resetTick()
	o.state = StateInactive
	metrics.UpdateActiveAngle(int(o.session.CurrentAngle()))
	o.logger.Info(ctx, "session reset", logger.String("session_id", o.session.ID()))
}

// Restore replaces the owned session, for example one loaded from storage,
// and continues it from its lowest missing angle.
func (o *Orchestrator) Restore(ctx context.Context, s *session.Session) {
	o.cancelCountdown()
	o.inflight = nil
	o.session = s
	o.logger.Info(ctx, "session restored",
		logger.String("session_id", s.ID()),
		logger.String("angle", s.CurrentAngle().String()))
	o.enterAngle(ctx, o.clock.Now())
}

func (o *Orchestrator) evaluate(cur angle.Index, now time.Time) (validation.PoseValidation, reading) {
	var r reading
	if o.head != nil {
		if h, ok := o.head.CurrentHeadPose(); ok {
			r.head = &h
		}
	}
	if o.orient != nil {
		if d, ok := o.orient.CurrentOrientation(); ok {
			r.device = &d
		}
	}
	v := o.engine.Evaluate(validation.Input{
		Spec:        angle.MustGet(cur),
		HeadPose:    r.head,
		Orientation: r.device,
	}, o.stabilityStart, now)
	return v, r
}

func (o *Orchestrator) publish(v validation.PoseValidation) {
	o.stabilityStart = v.StabilityStart
	o.latest = v
	o.hasLatest = true
}

func (o *Orchestrator) startCountdown(ctx context.Context, now time.Time, r reading) {
	o.cd = &countdown{startedAt: now, remaining: o.countdownSeconds, locked: r.head}
	o.state = StateCountingDown
	cur := o.session.CurrentAngle().String()
	metrics.RecordCountdownStarted(cur)
	o.logger.Info(ctx, "pose locked", logger.String("angle", cur))
	o.emit(model.FeedbackEvent{Kind: model.FeedbackLocked, Progress: 1}, now)
	o.emit(model.FeedbackEvent{Kind: model.FeedbackCountdown, Count: o.countdownSeconds}, now)
}

// countdownViolation checks drift from the locked pose first so movement is
// reported as such even if the tick already saw the pose go invalid. Losing
// the face only matters on angles that need it; the others fall back to the
// device orientation.
func (o *Orchestrator) countdownViolation() model.AbortReason {
	if locked := o.cd.locked; locked != nil {
		h, ok := o.head.CurrentHeadPose()
		switch {
		case ok && h.TrackingState != model.TrackingLost:
			if math.Abs(h.Pitch-locked.Pitch) > o.movementTolerance ||
				math.Abs(h.Yaw-locked.Yaw) > o.movementTolerance {
				return model.AbortExcessiveMovement
			}
		case angle.MustGet(o.session.CurrentAngle()).RequiresFaceOnScreen:
			return model.AbortValidationLost
		}
	}
	if !o.hasLatest || !o.latest.IsReadyForCapture() {
		return model.AbortValidationLost
	}
	return model.AbortNone
}

func (o *Orchestrator) abort(ctx context.Context, reason model.AbortReason, now time.Time) {
	cur := o.session.CurrentAngle().String()
	metrics.RecordCountdownAborted(cur, string(reason))
	o.logger.Info(ctx, "countdown aborted", logger.String("angle", cur), logger.String("reason", string(reason)))
	o.toIdle()
	o.emit(model.FeedbackEvent{Kind: model.FeedbackError, Reason: reason, Message: abortMessage(reason)}, now)
}

func (o *Orchestrator) beginCapture(ctx context.Context, now time.Time, mode model.CaptureMode, v validation.PoseValidation, r reading) *Request {
	o.cancelCountdown()
	o.nextToken++
	req := Request{
		Token:       o.nextToken,
		Angle:       o.session.CurrentAngle(),
		Mode:        mode,
		RequestedAt: now,
	}
	o.inflight = &pending{req: req, validation: v, reading: r}
	o.state = StateCapturing
	o.logger.Info(ctx, "capturing",
		logger.String("angle", req.Angle.String()),
		logger.String("mode", string(mode)),
		logger.Any("token", req.Token))
	return &req
}

// cancelCountdown is the single place a countdown is dropped.
func (o *Orchestrator) cancelCountdown() {
	o.cd = nil
}

func (o *Orchestrator) toIdle() {
	o.cancelCountdown()
	o.resetTick()
	o.state = StateIdle
}

func (o *Orchestrator) resetTick() {
	o.stabilityStart = time.Time{}
	o.hasLatest = false
	o.latest = validation.PoseValidation{}
	o.proximityStep = -1
}

// enterAngle moves to the current angle, or to Complete when none is left.
func (o *Orchestrator) enterAngle(ctx context.Context, now time.Time) {
	o.resetTick()
	cur := o.session.CurrentAngle()
	metrics.UpdateActiveAngle(int(cur))
	if o.session.IsComplete() {
		o.state = StateComplete
		sum := o.session.Summary()
		metrics.RecordSessionCompleted(sum.TotalAttempts)
		o.logger.Info(ctx, "session complete",
			logger.String("session_id", sum.ID),
			logger.Int("total_attempts", sum.TotalAttempts),
			logger.Duration("total_time", sum.TotalTime))
		return
	}
	if err := o.session.StartAngleCapture(cur, now); err != nil {
		o.logger.Error(ctx, "start angle", logger.Error(err))
	}
	o.state = StateIdle
}

func (o *Orchestrator) emitProximity(v validation.PoseValidation, now time.Time) {
	step := int(v.Progress * 10)
	if step == o.proximityStep {
		return
	}
	o.proximityStep = step
	o.emit(model.FeedbackEvent{Kind: model.FeedbackProximity, Progress: v.Progress, Message: v.Hint.Message()}, now)
}

func (o *Orchestrator) emit(e model.FeedbackEvent, now time.Time) {
	o.emitFor(o.session.CurrentAngle(), e, now)
}

func (o *Orchestrator) emitFor(a angle.Index, e model.FeedbackEvent, now time.Time) {
	e.Angle = int(a)
	e.At = now
	metrics.RecordFeedbackEvent(string(e.Kind))
	o.sink.Emit(e)
}

func abortMessage(reason model.AbortReason) string {
	switch reason {
	case model.AbortValidationLost:
		return "Pose lost, hold the position again"
	case model.AbortExcessiveMovement:
		return "Too much movement, hold still"
	default:
		return ""
	}
}
