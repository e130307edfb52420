package simulate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/okian/posecap/internal/adapters/sensors"
	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/capture"
	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/internal/simulate"
	"github.com/okian/posecap/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu      sync.Mutex
	heads   []*model.HeadPoseSample
	devices []model.DeviceOrientationSample
}

func (p *recordingPublisher) PublishHeadPose(s *model.HeadPoseSample) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heads = append(p.heads, s)
	return nil
}

func (p *recordingPublisher) PublishOrientation(s model.DeviceOrientationSample) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices = append(p.devices, s)
	return nil
}

func (p *recordingPublisher) last() (*model.HeadPoseSample, model.DeviceOrientationSample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heads[len(p.heads)-1], p.devices[len(p.devices)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.devices)
}

func TestTimeline(t *testing.T) {
	Convey("Given a timeline of away, front and a turn", t, func() {
		tl := simulate.Timeline{
			simulate.Away(time.Second),
			simulate.Hold(angle.Front, 2*time.Second),
			simulate.Turn(angle.Front, 30, time.Second),
		}

		So(tl.Duration(), ShouldEqual, 4*time.Second)

		Convey("Then each offset maps to its segment", func() {
			So(tl.At(0).Head, ShouldBeNil)
			So(tl.At(999*time.Millisecond).Head, ShouldBeNil)

			front := tl.At(time.Second).Head
			So(front, ShouldNotBeNil)
			So(front.Yaw, ShouldEqual, 0)
			So(front.TrackingState, ShouldEqual, model.TrackingNormal)

			So(tl.At(3500*time.Millisecond).Head.Yaw, ShouldEqual, 30)
		})

		Convey("Then the last segment holds past the end", func() {
			So(tl.At(time.Hour).Head.Yaw, ShouldEqual, 30)
		})

		Convey("Then samples do not alias the segment pose", func() {
			tl.At(time.Second).Head.Yaw = 99
			So(tl.At(time.Second).Head.Yaw, ShouldEqual, 0)
		})
	})

	Convey("Given a wobbling segment", t, func() {
		seg := simulate.Hold(angle.RightProfile, time.Second)
		seg.Wobble = 2
		tl := simulate.Timeline{seg}

		Convey("Then the yaw stays within the wobble of the target", func() {
			for ms := 0; ms < 1000; ms += 25 {
				yaw := tl.At(time.Duration(ms) * time.Millisecond).Head.Yaw
				So(yaw, ShouldBeBetweenOrEqual, 88, 92)
			}
		})
	})

	Convey("Given an empty timeline", t, func() {
		So(simulate.Timeline{}.At(time.Second), ShouldResemble, simulate.Pose{})
	})
}

func TestIdealPose(t *testing.T) {
	Convey("Ideal poses sit on each angle target", t, func() {
		So(simulate.IdealPose(angle.Front).Head.Yaw, ShouldEqual, 0)
		So(simulate.IdealPose(angle.RightProfile).Head.Yaw, ShouldEqual, 90)
		So(simulate.IdealPose(angle.LeftProfile).Head.Yaw, ShouldEqual, -90)

		vertex := simulate.IdealPose(angle.Vertex)
		So(vertex.Head, ShouldBeNil)
		So(vertex.Device.Pitch, ShouldEqual, 90)

		donor := simulate.IdealPose(angle.Donor)
		So(donor.Head, ShouldBeNil)
		So(donor.Device.Pitch, ShouldEqual, 0)

		So(simulate.IdealPose(angle.Complete), ShouldResemble, simulate.Pose{})
	})
}

func TestScenario(t *testing.T) {
	Convey("Known scenarios build a script for every angle", t, func() {
		for _, name := range simulate.ScenarioNames() {
			s, err := simulate.Scenario(name, 100*time.Millisecond)
			So(err, ShouldBeNil)
			So(len(s), ShouldEqual, angle.Count)
		}
	})

	Convey("Unknown scenarios are rejected", t, func() {
		_, err := simulate.Scenario("moonwalk", time.Second)
		So(errors.Is(err, simulate.ErrUnknownScenario), ShouldBeTrue)
	})

	Convey("A script without an angle falls back to away", t, func() {
		So(simulate.Script{}.For(angle.Front).At(0).Head, ShouldBeNil)
	})
}

func TestPlayerStep(t *testing.T) {
	Convey("Given a player following a settable angle", t, func() {
		clk := &manualClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
		pub := &recordingPublisher{}
		current := angle.Front
		p := simulate.NewPlayer(pub, simulate.Steady(500*time.Millisecond),
			func() angle.Index { return current },
			simulate.WithPlayerNow(clk.Now))

		Convey("When the user is still settling", func() {
			So(p.Step(), ShouldBeNil)
			head, device := pub.last()

			Convey("Then no face is reported", func() {
				So(head, ShouldBeNil)
				So(device.Timestamp, ShouldEqual, clk.Now())
			})
		})

		Convey("When the settle time has passed", func() {
			So(p.Step(), ShouldBeNil)
			clk.Advance(600 * time.Millisecond)
			So(p.Step(), ShouldBeNil)
			head, _ := pub.last()

			Convey("Then the front pose is published with a fresh timestamp", func() {
				So(head, ShouldNotBeNil)
				So(head.Yaw, ShouldAlmostEqual, 0, 1.01)
				So(head.Timestamp, ShouldEqual, clk.Now())
			})

			Convey("Then advancing to the next angle restarts its timeline", func() {
				current = angle.RightProfile
				So(p.Step(), ShouldBeNil)
				head, _ := pub.last()
				So(head, ShouldBeNil)

				clk.Advance(600 * time.Millisecond)
				So(p.Step(), ShouldBeNil)
				head, _ = pub.last()
				So(head.Yaw, ShouldAlmostEqual, 90, 1.01)
			})
		})

		Convey("When the session is complete", func() {
			current = angle.Complete
			clk.Advance(time.Hour)
			So(p.Step(), ShouldBeNil)
			head, _ := pub.last()
			So(head, ShouldBeNil)
		})
	})
}

func TestPlayerLifecycle(t *testing.T) {
	Convey("Given a player publishing into readings", t, func() {
		readings := sensors.NewReadings()
		pub := &recordingPublisher{}
		p := simulate.NewPlayer(pub, simulate.Steady(0),
			func() angle.Index { return angle.Vertex },
			simulate.WithRate(time.Millisecond),
			simulate.WithPlayerLogger(logger.Nop()))

		So(p.Start(context.Background()), ShouldBeNil)
		Reset(func() { _ = p.Stop() })

		Convey("Then it publishes until stopped", func() {
			deadline := time.Now().Add(2 * time.Second)
			for pub.count() < 5 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			So(pub.count(), ShouldBeGreaterThanOrEqualTo, 5)

			So(p.Stop(), ShouldBeNil)
			n := pub.count()
			time.Sleep(10 * time.Millisecond)
			So(pub.count(), ShouldEqual, n)
			So(p.Stop(), ShouldBeNil)
		})

		Convey("Then a second Start is refused", func() {
			So(errors.Is(p.Start(context.Background()), simulate.ErrPlayerRunning), ShouldBeTrue)
		})

		Convey("Then ReadingsPublisher fills and clears the slots", func() {
			rp := simulate.ReadingsPublisher{Readings: readings}
			So(rp.PublishOrientation(model.DeviceOrientationSample{Pitch: 88}), ShouldBeNil)
			So(rp.PublishHeadPose(&model.HeadPoseSample{Yaw: 3, TrackingState: model.TrackingNormal}), ShouldBeNil)
			So(readings.IsTracking(), ShouldBeTrue)
			o, ok := readings.CurrentOrientation()
			So(ok, ShouldBeTrue)
			So(o.Pitch, ShouldEqual, 88)

			So(rp.PublishHeadPose(nil), ShouldBeNil)
			So(readings.IsTracking(), ShouldBeFalse)
		})
	})
}

func TestRemote(t *testing.T) {
	Convey("Given a fake posecap server", t, func() {
		var mu sync.Mutex
		view := capture.View{State: capture.StateIdle, Angle: angle.LeftProfile, AngleName: "left"}
		mux := http.NewServeMux()
		mux.HandleFunc("GET /session", func(w http.ResponseWriter, _ *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			_ = json.NewEncoder(w).Encode(view)
		})
		mux.HandleFunc("POST /session/start", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":409}`))
		})
		srv := httptest.NewServer(mux)
		Reset(srv.Close)

		r := simulate.NewRemote(srv.URL, nil)

		Convey("Then Session decodes the view", func() {
			v, err := r.Session(context.Background())
			So(err, ShouldBeNil)
			So(v.Angle, ShouldEqual, angle.LeftProfile)
		})

		Convey("Then non-200 responses are errors", func() {
			_, err := r.StartSession(context.Background())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "409")
		})

		Convey("Then Track caches the current angle", func() {
			So(r.Current(), ShouldEqual, angle.Front)
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				r.Track(ctx, logger.Nop())
				close(done)
			}()
			deadline := time.Now().Add(2 * time.Second)
			for r.Current() != angle.LeftProfile && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			cancel()
			<-done
			So(r.Current(), ShouldEqual, angle.LeftProfile)
		})
	})
}
