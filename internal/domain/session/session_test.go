package session_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/internal/domain/session"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func result(a angle.Index, id string) session.Result {
	return session.Result{
		Angle: a,
		Image: model.ImageHandle{ID: id},
		Metadata: session.Metadata{
			Mode:       model.CaptureAuto,
			CapturedAt: t0,
		},
	}
}

func TestSessionLifecycle(t *testing.T) {
	Convey("Given a new session", t, func() {
		s := session.New(t0)

		Convey("Then it starts at the front angle with a fresh ID", func() {
			So(s.ID(), ShouldNotBeEmpty)
			So(s.CurrentAngle(), ShouldEqual, angle.Front)
			So(s.IsComplete(), ShouldBeFalse)
			So(s.CreatedAt(), ShouldEqual, t0)
		})

		Convey("When every angle gets a result", func() {
			for _, spec := range angle.All() {
				So(s.AddResult(result(spec.Index, spec.Name)), ShouldBeNil)
			}

			Convey("Then the session is complete", func() {
				So(s.IsComplete(), ShouldBeTrue)
				So(s.CurrentAngle(), ShouldEqual, angle.Complete)
				So(s.Summary().Captured, ShouldEqual, angle.Count)
			})
		})

		Convey("When a result is added twice", func() {
			So(s.AddResult(result(angle.Front, "a")), ShouldBeNil)
			err := s.AddResult(result(angle.Front, "b"))

			Convey("Then the second is rejected and the first kept", func() {
				So(errors.Is(err, session.ErrResultExists), ShouldBeTrue)
				r, ok := s.Result(angle.Front)
				So(ok, ShouldBeTrue)
				So(r.Image.ID, ShouldEqual, "a")
			})
		})

		Convey("When an out-of-range angle is used", func() {
			So(errors.Is(s.AddResult(result(angle.Complete, "x")), angle.ErrInvalidAngle), ShouldBeTrue)
			So(errors.Is(s.StartAngleCapture(angle.Index(-1), t0), angle.ErrInvalidAngle), ShouldBeTrue)
			So(errors.Is(s.RecordAttempt(angle.Index(9), true, t0), angle.ErrInvalidAngle), ShouldBeTrue)
			So(errors.Is(s.RetakeAngle(angle.Complete), angle.ErrInvalidAngle), ShouldBeTrue)
		})

		Convey("When retaking an angle with no result", func() {
			So(s.AddResult(result(angle.Front, "a")), ShouldBeNil)
			before := s.Summary()
			So(s.RetakeAngle(angle.Vertex), ShouldBeNil)

			Convey("Then nothing changes", func() {
				So(s.Summary(), ShouldResemble, before)
				So(s.CurrentAngle(), ShouldEqual, angle.RightProfile)
			})
		})

		Convey("When the session is reset", func() {
			id := s.ID()
			So(s.AddResult(result(angle.Front, "a")), ShouldBeNil)
			So(s.RecordAttempt(angle.Front, true, t0), ShouldBeNil)
			s.Reset(t0.Add(time.Minute))

			Convey("Then everything is cleared under a new ID", func() {
				So(s.ID(), ShouldNotEqual, id)
				So(s.CurrentAngle(), ShouldEqual, angle.Front)
				So(s.Stats(angle.Front).Attempts, ShouldEqual, 0)
				_, ok := s.Result(angle.Front)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestAttemptStats(t *testing.T) {
	Convey("Given an angle being worked on", t, func() {
		s := session.New(t0)
		So(s.StartAngleCapture(angle.Front, t0), ShouldBeNil)

		Convey("When StartAngleCapture is called again", func() {
			So(s.StartAngleCapture(angle.Front, t0.Add(time.Second)), ShouldBeNil)

			Convey("Then the original start is kept", func() {
				So(s.Stats(angle.Front).StartedAt, ShouldEqual, t0)
			})
		})

		Convey("When a successful attempt is recorded after 4s", func() {
			So(s.RecordAttempt(angle.Front, true, t0.Add(4*time.Second)), ShouldBeNil)

			Convey("Then attempts and time are accumulated and the window closes", func() {
				st := s.Stats(angle.Front)
				So(st.Attempts, ShouldEqual, 1)
				So(st.TimeSpent, ShouldEqual, 4*time.Second)
				So(st.StartedAt.IsZero(), ShouldBeTrue)
			})

			Convey("And a retake window adds to the same totals", func() {
				So(s.StartAngleCapture(angle.Front, t0.Add(10*time.Second)), ShouldBeNil)
				So(s.RecordAttempt(angle.Front, true, t0.Add(12*time.Second)), ShouldBeNil)
				st := s.Stats(angle.Front)
				So(st.Attempts, ShouldEqual, 2)
				So(st.TimeSpent, ShouldEqual, 6*time.Second)

				sum := s.Summary()
				So(sum.TotalAttempts, ShouldEqual, 2)
				So(sum.TotalTime, ShouldEqual, 6*time.Second)
			})
		})

		Convey("When an unsuccessful attempt is recorded", func() {
			So(s.RecordAttempt(angle.Front, false, t0.Add(time.Second)), ShouldBeNil)

			Convey("Then the attempt counts but the window stays open", func() {
				st := s.Stats(angle.Front)
				So(st.Attempts, ShouldEqual, 1)
				So(st.TimeSpent, ShouldEqual, 0)
				So(st.StartedAt, ShouldEqual, t0)
			})
		})
	})
}

func TestRetakeRoundTrip(t *testing.T) {
	Convey("Given a session with three captured angles", t, func() {
		s := session.New(t0)
		for _, a := range []angle.Index{angle.Front, angle.RightProfile, angle.LeftProfile} {
			So(s.AddResult(result(a, a.String())), ShouldBeNil)
		}
		So(s.CurrentAngle(), ShouldEqual, angle.Vertex)

		Convey("When the right profile is retaken and recaptured", func() {
			So(s.RetakeAngle(angle.RightProfile), ShouldBeNil)
			So(s.CurrentAngle(), ShouldEqual, angle.RightProfile)
			So(s.AddResult(result(angle.RightProfile, "again")), ShouldBeNil)

			Convey("Then exactly one new result exists and the rest are untouched", func() {
				r, ok := s.Result(angle.RightProfile)
				So(ok, ShouldBeTrue)
				So(r.Image.ID, ShouldEqual, "again")
				front, _ := s.Result(angle.Front)
				left, _ := s.Result(angle.LeftProfile)
				So(front.Image.ID, ShouldEqual, "front")
				So(left.Image.ID, ShouldEqual, "left")
				So(s.Summary().Captured, ShouldEqual, 3)
				So(s.CurrentAngle(), ShouldEqual, angle.Vertex)
			})
		})
	})
}

func TestCurrentAngleInvariant(t *testing.T) {
	Convey("Given random AddResult and RetakeAngle sequences", t, func() {
		rng := rand.New(rand.NewSource(11)) //nolint:gosec // deterministic test input

		for run := 0; run < 100; run++ {
			s := session.New(t0)
			have := make(map[angle.Index]bool)
			for step := 0; step < 30; step++ {
				a := angle.Index(rng.Intn(angle.Count))
				if rng.Intn(2) == 0 {
					err := s.AddResult(result(a, "x"))
					So(err == nil, ShouldEqual, !have[a])
					have[a] = true
				} else {
					So(s.RetakeAngle(a), ShouldBeNil)
					delete(have, a)
				}

				want := angle.Complete
				for i := 0; i < angle.Count; i++ {
					if !have[angle.Index(i)] {
						want = angle.Index(i)
						break
					}
				}
				So(s.CurrentAngle(), ShouldEqual, want)
			}
		}
	})
}

func TestSnapshotRestore(t *testing.T) {
	Convey("Given a partially captured session", t, func() {
		s := session.New(t0)
		So(s.StartAngleCapture(angle.Front, t0), ShouldBeNil)
		So(s.RecordAttempt(angle.Front, true, t0.Add(3*time.Second)), ShouldBeNil)
		So(s.AddResult(result(angle.Front, "img-1")), ShouldBeNil)
		So(s.AddResult(result(angle.LeftProfile, "img-3")), ShouldBeNil)

		Convey("When it is snapshotted and restored", func() {
			snap := s.Snapshot()
			restored, err := session.Restore(snap)

			Convey("Then the restored session matches", func() {
				So(err, ShouldBeNil)
				So(restored.ID(), ShouldEqual, s.ID())
				So(restored.CurrentAngle(), ShouldEqual, angle.RightProfile)
				So(restored.Stats(angle.Front), ShouldResemble, s.Stats(angle.Front))
				So(restored.Summary(), ShouldResemble, s.Summary())
				So(len(snap.Results), ShouldEqual, 2)
				So(len(snap.Stats), ShouldEqual, angle.Count)
			})
		})

		Convey("When the snapshot claims a wrong current angle", func() {
			snap := s.Snapshot()
			snap.CurrentAngle = angle.Donor
			restored, err := session.Restore(snap)

			Convey("Then the current angle is derived from results", func() {
				So(err, ShouldBeNil)
				So(restored.CurrentAngle(), ShouldEqual, angle.RightProfile)
			})
		})

		Convey("When the snapshot is corrupt", func() {
			bad := s.Snapshot()
			bad.ID = "not-a-uuid"
			_, err := session.Restore(bad)
			So(errors.Is(err, session.ErrInvalidSnapshot), ShouldBeTrue)

			dup := s.Snapshot()
			dup.Results = append(dup.Results, dup.Results[0])
			_, err = session.Restore(dup)
			So(errors.Is(err, session.ErrInvalidSnapshot), ShouldBeTrue)
			So(errors.Is(err, session.ErrResultExists), ShouldBeTrue)
		})
	})
}
