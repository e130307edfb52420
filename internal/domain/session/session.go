// Package session holds the capture session aggregate: per-angle results,
// attempt statistics and the current angle pointer.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/model"
)

// Metadata is the snapshot of capture conditions stored with a result.
type Metadata struct {
	Mode           model.CaptureMode              `json:"mode"`
	CapturedAt     time.Time                      `json:"captured_at"`
	Attempts       int                            `json:"attempts"`
	TimeSpent      time.Duration                  `json:"time_spent"`
	PitchError     float64                        `json:"pitch_error"`
	YawError       float64                        `json:"yaw_error"`
	CenterDistance float64                        `json:"center_distance"`
	Progress       float64                        `json:"progress"`
	Device         *model.DeviceOrientationSample `json:"device,omitempty"`
	HeadPose       *model.HeadPoseSample          `json:"head_pose,omitempty"`
}

// Result is the outcome of one successful capture.
type Result struct {
	Angle    angle.Index       `json:"angle"`
	Image    model.ImageHandle `json:"image"`
	Metadata Metadata          `json:"metadata"`
}

// Stats accumulates attempts and time for one angle over the session lifetime.
// A zero StartedAt means the angle is not being worked on.
type Stats struct {
	Attempts  int           `json:"attempts"`
	TimeSpent time.Duration `json:"time_spent"`
	StartedAt time.Time     `json:"started_at,omitempty"`
}

// Summary aggregates a session for reporting.
type Summary struct {
	ID            string        `json:"id"`
	Captured      int           `json:"captured"`
	Total         int           `json:"total"`
	TotalAttempts int           `json:"total_attempts"`
	TotalTime     time.Duration `json:"total_time"`
	Complete      bool          `json:"complete"`
	CurrentAngle  angle.Index   `json:"current_angle"`
}

// Session is the mutable capture aggregate. It is not safe for concurrent
// use; a single owner mutates it.
type Session struct {
	id        string
	createdAt time.Time
	current   angle.Index
	results   [angle.Count]*Result
	stats     [angle.Count]Stats
}

// New creates an empty session with a fresh ID.
func New(now time.Time) *Session {
	return &Session{id: uuid.NewString(), createdAt: now, current: angle.Front}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session (or its last reset) began.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// CurrentAngle returns the lowest angle without a result, or angle.Complete.
func (s *Session) CurrentAngle() angle.Index { return s.current }

// IsComplete reports whether every angle has a result.
func (s *Session) IsComplete() bool { return s.current == angle.Complete }

// StartAngleCapture marks a as being worked on from now. An angle already
// in progress keeps its original start.
func (s *Session) StartAngleCapture(a angle.Index, now time.Time) error {
	if !a.Valid() {
		return fmt.Errorf("start angle: %w", angle.ErrInvalidAngle)
	}
	if s.stats[a].StartedAt.IsZero() {
		s.stats[a].StartedAt = now
	}
	return nil
}

// RecordAttempt counts one capture attempt on a. A successful attempt also
// closes the running time window for the angle.
func (s *Session) RecordAttempt(a angle.Index, successful bool, now time.Time) error {
	if !a.Valid() {
		return fmt.Errorf("record attempt: %w", angle.ErrInvalidAngle)
	}
	st := &s.stats[a]
	st.Attempts++
	if successful && !st.StartedAt.IsZero() {
		if d := now.Sub(st.StartedAt); d > 0 {
			st.TimeSpent += d
		}
		st.StartedAt = time.Time{}
	}
	return nil
}

// AddResult stores r and advances the current angle.
func (s *Session) AddResult(r Result) error {
	if !r.Angle.Valid() {
		return fmt.Errorf("add result: %w", angle.ErrInvalidAngle)
	}
	if s.results[r.Angle] != nil {
		return fmt.Errorf("add result for %s: %w", r.Angle, ErrResultExists)
	}
	res := r
	s.results[r.Angle] = &res
	s.recompute()
	return nil
}

// RetakeAngle drops the result for a, if any, so it can be captured again.
// Other angles and the attempt history are untouched.
func (s *Session) RetakeAngle(a angle.Index) error {
	if !a.Valid() {
		return fmt.Errorf("retake: %w", angle.ErrInvalidAngle)
	}
	if s.results[a] == nil {
		return nil
	}
	s.results[a] = nil
	s.stats[a].StartedAt = time.Time{}
	s.recompute()
	return nil
}

// Reset discards all results and statistics and assigns a new ID.
func (s *Session) Reset(now time.Time) {
	*s = *New(now)
}

// Result returns the stored result for a.
func (s *Session) Result(a angle.Index) (Result, bool) {
	if !a.Valid() || s.results[a] == nil {
		return Result{}, false
	}
	return *s.results[a], true
}

// Stats returns the statistics for a.
func (s *Session) Stats(a angle.Index) Stats {
	if !a.Valid() {
		return Stats{}
	}
	return s.stats[a]
}

// Summary aggregates the session.
func (s *Session) Summary() Summary {
	sum := Summary{
		ID:           s.id,
		Total:        angle.Count,
		Complete:     s.IsComplete(),
		CurrentAngle: s.current,
	}
	for i := range s.stats {
		sum.TotalAttempts += s.stats[i].Attempts
		sum.TotalTime += s.stats[i].TimeSpent
		if s.results[i] != nil {
			sum.Captured++
		}
	}
	return sum
}

// recompute keeps current pointing at the lowest angle without a result.
func (s *Session) recompute() {
	for i := range s.results {
		if s.results[i] == nil {
			s.current = angle.Index(i)
			return
		}
	}
	s.current = angle.Complete
}
