package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/posecap/internal/adapters/feedback"
	"github.com/okian/posecap/internal/adapters/repository"
	service "github.com/okian/posecap/internal/app"
	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/capture"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeSource struct {
	startErr error
	started  bool
	stopped  bool
}

func (f *fakeSource) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeSource) Stop() error {
	f.stopped = true
	return nil
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service with a sensor source", t, func() {
		src := &fakeSource{}
		svc := service.New(service.WithSource(src), service.WithQueueSize(8))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When it is not started", func() {
			stats := svc.GetStats()

			Convey("Then stats report it stopped and commands are refused", func() {
				So(stats["started"], ShouldEqual, false)
				So(stats["queueCapacity"], ShouldEqual, 8)
				_, err := svc.StartSession(ctx)
				So(errors.Is(err, service.ErrNotRunning), ShouldBeTrue)
			})
		})

		Convey("When it is started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(src.started, ShouldBeTrue)

			v, err := svc.View(ctx)
			So(err, ShouldBeNil)
			So(v.State, ShouldEqual, capture.StateInactive)
			So(svc.GetStats()["started"], ShouldEqual, true)

			svc.Stop()
			svc.Stop()

			Convey("Then the source is stopped and commands are refused", func() {
				So(src.stopped, ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
				_, err := svc.View(ctx)
				So(errors.Is(err, service.ErrNotRunning), ShouldBeTrue)
			})
		})

		Convey("When the source fails to start", func() {
			src.startErr = errors.New("broker unreachable")
			err := svc.Start(ctx)

			Convey("Then Start reports it and the service stays stopped", func() {
				So(err, ShouldNotBeNil)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Restart(t *testing.T) {
	Convey("Given a service with a hub and a store", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := repository.OpenSQLite(ctx, ":memory:")
		So(err, ShouldBeNil)
		defer store.Close()
		svc := service.New(service.WithHub(feedback.NewHub()), service.WithStore(store))

		Convey("When it is started and stopped twice", func() {
			for round := 0; round < 2; round++ {
				So(svc.Start(ctx), ShouldBeNil)
				_, err := svc.StartSession(ctx)
				So(err, ShouldBeNil)
				_, err = svc.Save(ctx)
				So(err, ShouldBeNil)
				So(func() { svc.Stop() }, ShouldNotPanic)
			}

			Convey("Then the store is still usable by its owner", func() {
				_, err := store.Latest(ctx)
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestService_Commands(t *testing.T) {
	Convey("Given a started service without sensor data", t, func() {
		svc := service.New()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a session is started twice", func() {
			v, err := svc.StartSession(ctx)
			So(err, ShouldBeNil)
			So(v.State, ShouldEqual, capture.StateIdle)
			So(v.Angle, ShouldEqual, angle.Front)

			_, err = svc.StartSession(ctx)
			So(errors.Is(err, capture.ErrSessionActive), ShouldBeTrue)
		})

		Convey("When a manual capture is asked for with no face in frame", func() {
			_, err := svc.StartSession(ctx)
			So(err, ShouldBeNil)
			v, err := svc.ManualCapture(ctx)

			Convey("Then it is refused and nothing changes", func() {
				So(errors.Is(err, capture.ErrFaceNotDetected), ShouldBeTrue)
				So(v.State, ShouldEqual, capture.StateIdle)
				So(v.Summary.Captured, ShouldEqual, 0)
			})
		})

		Convey("When the session is paused and resumed", func() {
			_, err := svc.StartSession(ctx)
			So(err, ShouldBeNil)

			v, err := svc.Pause(ctx)
			So(err, ShouldBeNil)
			So(v.State, ShouldEqual, capture.StatePaused)
			_, err = svc.Pause(ctx)
			So(errors.Is(err, capture.ErrPaused), ShouldBeTrue)

			v, err = svc.Resume(ctx)
			So(err, ShouldBeNil)
			So(v.State, ShouldEqual, capture.StateIdle)
			_, err = svc.Resume(ctx)
			So(errors.Is(err, capture.ErrNotPaused), ShouldBeTrue)
		})

		Convey("When the loop has ticked", func() {
			_, err := svc.StartSession(ctx)
			So(err, ShouldBeNil)
			time.Sleep(200 * time.Millisecond)
			v, ok, err := svc.Validation(ctx)

			Convey("Then the latest verdict says the face is missing", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(v.Detection.IsDetected, ShouldBeFalse)
				So(v.IsReadyForCapture(), ShouldBeFalse)
				So(svc.GetStats()["ticks"], ShouldBeGreaterThan, uint64(0))
			})
		})

		Convey("When the session is reset", func() {
			first, err := svc.StartSession(ctx)
			So(err, ShouldBeNil)
			v, err := svc.Reset(ctx)

			Convey("Then a fresh session waits to be started", func() {
				So(err, ShouldBeNil)
				So(v.State, ShouldEqual, capture.StateInactive)
				So(v.SessionID, ShouldNotEqual, first.SessionID)
			})
		})

		Convey("When there is no store", func() {
			_, err := svc.Save(ctx)
			So(errors.Is(err, service.ErrNoStore), ShouldBeTrue)
			_, err = svc.Load(ctx, "")
			So(errors.Is(err, service.ErrNoStore), ShouldBeTrue)
			So(errors.Is(svc.Delete(ctx, "abc"), service.ErrNoStore), ShouldBeTrue)
		})
	})
}
