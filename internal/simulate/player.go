package simulate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/posecap/internal/adapters/sensors"
	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/pkg/logger"
)

// DefaultRate is how often the player publishes samples, about 30 Hz.
const DefaultRate = 33 * time.Millisecond

// ErrPlayerRunning is returned by Start on a player that is already running.
var ErrPlayerRunning = errors.New("player already running")

// Publisher receives the simulated sensor samples. A nil head pose means the
// face left the frame.
type Publisher interface {
	PublishHeadPose(s *model.HeadPoseSample) error
	PublishOrientation(s model.DeviceOrientationSample) error
}

// AngleFunc reports the angle the session is currently on.
type AngleFunc func() angle.Index

// ReadingsPublisher publishes straight into in-process sensor slots.
type ReadingsPublisher struct {
	Readings *sensors.Readings
}

// PublishHeadPose stores s, or clears the slot when s is nil.
func (p ReadingsPublisher) PublishHeadPose(s *model.HeadPoseSample) error {
	if s == nil {
		p.Readings.ClearHeadPose()
		return nil
	}
	p.Readings.PublishHeadPose(*s)
	return nil
}

// PublishOrientation stores s.
func (p ReadingsPublisher) PublishOrientation(s model.DeviceOrientationSample) error {
	p.Readings.PublishOrientation(s)
	return nil
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithRate sets the publish interval.
func WithRate(d time.Duration) PlayerOption {
	return func(p *Player) {
		if d > 0 {
			p.rate = d
		}
	}
}

// WithPlayerNow sets the clock used for offsets and sample timestamps.
func WithPlayerNow(now func() time.Time) PlayerOption {
	return func(p *Player) {
		if now != nil {
			p.now = now
		}
	}
}

// WithPlayerLogger sets the logger.
func WithPlayerLogger(l logger.Logger) PlayerOption {
	return func(p *Player) {
		if l != nil {
			p.logger = l
		}
	}
}

// Player replays a Script into a Publisher. It satisfies the service's
// sensor source contract.
type Player struct {
	pub     Publisher
	script  Script
	current AngleFunc
	rate    time.Duration
	now     func() time.Time
	logger  logger.Logger

	// Step state, owned by whoever calls Step.
	playing angle.Index
	since   time.Time
	primed  bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPlayer creates a player. current is consulted on every step so the
// script follows the session.
func NewPlayer(pub Publisher, script Script, current AngleFunc, opts ...PlayerOption) *Player {
	p := &Player{
		pub:     pub,
		script:  script,
		current: current,
		rate:    DefaultRate,
		now:     time.Now,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start publishes samples in the background until Stop or ctx is done.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrPlayerRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	p.logger.Info(ctx, "sensor script started", logger.Duration("rate", p.rate))
	return nil
}

// Stop halts publishing and waits for the loop to exit. It is safe to call
// more than once.
func (p *Player) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (p *Player) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.rate)
	defer ticker.Stop()
	for {
		if err := p.Step(); err != nil {
			p.logger.Warn(ctx, "publish sample", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Step publishes the samples for the current instant. The current angle's
// timeline restarts when the angle changes. Once the session is complete
// the face leaves the frame.
func (p *Player) Step() error {
	now := p.now()
	a := angle.Complete
	if p.current != nil {
		a = p.current()
	}
	if !p.primed || a != p.playing {
		p.playing, p.since, p.primed = a, now, true
		if a.Valid() {
			p.logger.Debug(context.Background(), "playing angle", logger.String("angle", a.String()))
		}
	}

	var pose Pose
	if a.Valid() {
		pose = p.script.For(a).At(now.Sub(p.since))
	}
	if pose.Head != nil {
		pose.Head.Timestamp = now
	}
	pose.Device.Timestamp = now

	return errors.Join(
		p.pub.PublishHeadPose(pose.Head),
		p.pub.PublishOrientation(pose.Device),
	)
}
