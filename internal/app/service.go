// Package service wires the capture orchestrator to its collaborators and
// runs the single loop that drives it.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/posecap/internal/adapters/camera"
	"github.com/okian/posecap/internal/adapters/feedback"
	commandqueue "github.com/okian/posecap/internal/adapters/mq/queue"
	captureworker "github.com/okian/posecap/internal/adapters/mq/worker"
	"github.com/okian/posecap/internal/adapters/repository"
	"github.com/okian/posecap/internal/adapters/sensors"
	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/capture"
	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/internal/domain/session"
	"github.com/okian/posecap/internal/domain/stability"
	"github.com/okian/posecap/internal/domain/validation"
	"github.com/okian/posecap/pkg/logger"
	"github.com/okian/posecap/pkg/metrics"
)

// Default loop configuration.
const (
	DefaultTickInterval           = 66 * time.Millisecond
	DefaultCountdownCheckInterval = 100 * time.Millisecond
	DefaultQueueSize              = 64
	DefaultCaptureTimeout         = 5 * time.Second

	stopTimeout = 5 * time.Second
)

// Source feeds sensor samples into the readings while it runs.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
}

type commandKind int

const (
	cmdView commandKind = iota
	cmdValidation
	cmdStart
	cmdPause
	cmdResume
	cmdReset
	cmdCapture
	cmdRetake
	cmdSnapshot
	cmdRestore
)

var commandNames = map[commandKind]string{ //nolint:gochecknoglobals // immutable lookup table
	cmdView:       "view",
	cmdValidation: "validation",
	cmdStart:      "start",
	cmdPause:      "pause",
	cmdResume:     "resume",
	cmdReset:      "reset",
	cmdCapture:    "capture",
	cmdRetake:     "retake",
	cmdSnapshot:   "snapshot",
	cmdRestore:    "restore",
}

func (k commandKind) String() string { return commandNames[k] }

type command struct {
	kind    commandKind
	angle   angle.Index
	restore *session.Session
	reply   chan reply
}

type reply struct {
	view          capture.View
	validation    validation.PoseValidation
	hasValidation bool
	snapshot      session.Snapshot
	err           error
}

// Service owns the orchestrator. Every orchestrator call happens on the loop
// goroutine; HTTP handlers reach it through the command queue.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	readings *sensors.Readings
	source   Source
	camera   captureworker.Camera
	store    repository.SessionStore
	hub      *feedback.Hub
	sinks    []feedback.Sink
	clock    capture.Clock

	// Configuration
	tickInterval       time.Duration
	checkInterval      time.Duration
	countdown          time.Duration
	stabilityThreshold time.Duration
	movementTolerance  float64
	queueSize          int
	captureTimeout     time.Duration

	// Built on Start
	orch     *capture.Orchestrator
	commands *commandqueue.InMemoryQueue[command]
	worker   *captureworker.InMemoryWorker
	cancel   context.CancelFunc
	done     chan struct{}
	hubDone  chan struct{}

	// State
	started  bool
	viewMu   sync.RWMutex
	lastView capture.View
	ticks    uint64

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		clock:              capture.SystemClock{},
		tickInterval:       DefaultTickInterval,
		checkInterval:      DefaultCountdownCheckInterval,
		countdown:          capture.DefaultCountdownSeconds * time.Second,
		stabilityThreshold: stability.DefaultThreshold,
		movementTolerance:  capture.DefaultMovementTolerance,
		queueSize:          DefaultQueueSize,
		captureTimeout:     DefaultCaptureTimeout,
		logger:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.readings == nil {
		s.readings = sensors.NewReadings()
	}
	if s.camera == nil {
		s.camera = camera.NewSimulated()
	}
	return s
}

// Readings returns the sensor slots the loop reads.
func (s *Service) Readings() *sensors.Readings { return s.readings }

// CurrentAngle returns the angle of the last published view without going
// through the loop. It is Front before the first tick.
func (s *Service) CurrentAngle() angle.Index {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.lastView.Angle
}

// Start builds the orchestrator, starts the collaborators and the loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting capture service...")

	sinks := feedback.Fanout{feedback.LogSink{Logger: s.logger.Named("feedback")}}
	if s.hub != nil {
		sinks = append(sinks, s.hub)
	}
	sinks = append(sinks, s.sinks...)

	engine := validation.NewEngine(
		validation.WithStabilityTracker(stability.New(stability.WithThreshold(s.stabilityThreshold))),
	)
	s.orch = capture.New(s.readings, s.readings, sinks,
		capture.WithClock(s.clock),
		capture.WithEngine(engine),
		capture.WithLogger(s.logger.Named("orchestrator")),
		capture.WithCountdown(s.countdown),
		capture.WithMovementTolerance(s.movementTolerance),
	)
	s.commands = commandqueue.NewInMemoryQueue[command](commandqueue.WithCapacity(s.queueSize))
	s.worker = captureworker.NewInMemoryWorker(s.camera,
		captureworker.WithLogger(s.logger),
		captureworker.WithTimeout(s.captureTimeout),
	)

	// The loop outlives the Start context; Stop ends it.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if s.source != nil {
		if err := s.source.Start(loopCtx); err != nil {
			cancel()
			return fmt.Errorf("start sensor source: %w", err)
		}
	}
	s.hubDone = make(chan struct{})
	if s.hub != nil {
		go func(done chan struct{}) {
			defer close(done)
			s.hub.Run(loopCtx)
		}(s.hubDone)
	} else {
		close(s.hubDone)
	}
	go s.worker.Run(loopCtx)

	s.cancel = cancel
	s.done = make(chan struct{})
	s.setView(s.orch.View())
	go s.run(loopCtx, s.done)

	s.started = true
	s.logger.Info(ctx, "capture service started",
		logger.Duration("tick", s.tickInterval),
		logger.Duration("countdown", s.countdown),
		logger.Duration("stability", s.stabilityThreshold),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop gracefully shuts down the service. The store stays open and the
// service can be started again.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping capture service...")

	s.cancel()
	<-s.done
	<-s.hubDone

	shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := s.worker.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "capture worker shutdown", logger.Error(err))
	}
	if s.source != nil {
		if err := s.source.Stop(); err != nil {
			s.logger.Warn(ctx, "sensor source stop", logger.Error(err))
		}
	}
	_ = s.commands.Close()

	s.started = false
	s.logger.Info(ctx, "capture service stopped")
}

// run is the only goroutine that touches the orchestrator.
func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(s.tickInterval)
	defer tick.Stop()
	check := time.NewTicker(s.checkInterval)
	defer check.Stop()

	commands := s.commands.Dequeue()
	completions := s.worker.Completions()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return

		case <-tick.C:
			start := time.Now()
			s.orch.Tick(ctx)
			metrics.RecordTick(float64(time.Since(start).Microseconds()) / 1000)
			s.viewMu.Lock()
			s.ticks++
			s.viewMu.Unlock()

		case <-check.C:
			if req := s.orch.CheckCountdown(ctx); req != nil {
				s.dispatch(ctx, *req)
			}

		case cmd, ok := <-commands:
			if !ok {
				return
			}
			cmd.reply <- s.handle(ctx, cmd)
			s.commands.Done()

		case c := <-completions:
			err := s.orch.FinishCapture(ctx, c.Request.Token, c.Image, c.Err)
			if err != nil && !errors.Is(err, capture.ErrStaleCapture) {
				metrics.RecordErrorByComponent("service", "finish_capture")
				s.logger.Error(ctx, "finish capture", logger.Error(err))
			}
		}
		s.setView(s.orch.View())
	}
}

// drain answers queued commands after the loop stopped.
func (s *Service) drain() {
	for {
		select {
		case cmd, ok := <-s.commands.Dequeue():
			if !ok {
				return
			}
			cmd.reply <- reply{err: ErrNotRunning}
		default:
			return
		}
	}
}

func (s *Service) handle(ctx context.Context, cmd command) reply {
	var r reply
	switch cmd.kind {
	case cmdView:
	case cmdValidation:
		r.validation, r.hasValidation = s.orch.Latest()
	case cmdStart:
		r.err = s.orch.StartSession(ctx)
	case cmdPause:
		r.err = s.orch.Pause(ctx)
	case cmdResume:
		r.err = s.orch.Resume(ctx)
	case cmdReset:
		s.orch.Reset(ctx)
	case cmdCapture:
		req, err := s.orch.ManualCapture(ctx)
		r.err = err
		if err == nil {
			s.dispatch(ctx, *req)
		}
	case cmdRetake:
		r.err = s.orch.Retake(ctx, cmd.angle)
	case cmdSnapshot:
		r.snapshot = s.orch.Session()
	case cmdRestore:
		s.orch.Restore(ctx, cmd.restore)
	}
	if r.err != nil {
		s.logger.Debug(ctx, "command refused", logger.String("command", cmd.kind.String()), logger.Error(r.err))
	}
	r.view = s.orch.View()
	return r
}

// dispatch hands req to the worker. A refused hand-off counts as a failed
// capture so the orchestrator returns to Idle.
func (s *Service) dispatch(ctx context.Context, req capture.Request) {
	if err := s.worker.Submit(req); err != nil {
		s.logger.Warn(ctx, "capture dispatch failed", logger.Error(err))
		if ferr := s.orch.FinishCapture(ctx, req.Token, model.ImageHandle{}, err); ferr != nil {
			s.logger.Error(ctx, "finish capture", logger.Error(ferr))
		}
	}
}

func (s *Service) setView(v capture.View) {
	s.viewMu.Lock()
	s.lastView = v
	s.viewMu.Unlock()
}

func (s *Service) do(ctx context.Context, cmd command) (reply, error) {
	s.mu.RLock()
	started, q, done := s.started, s.commands, s.done
	s.mu.RUnlock()
	if !started {
		return reply{}, ErrNotRunning
	}

	cmd.reply = make(chan reply, 1)
	if err := q.Enqueue(ctx, cmd); err != nil {
		if errors.Is(err, commandqueue.ErrClosed) {
			return reply{}, ErrNotRunning
		}
		return reply{}, fmt.Errorf("%s: %w", cmd.kind, err)
	}
	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-done:
		return reply{}, ErrNotRunning
	case <-ctx.Done():
		return reply{}, fmt.Errorf("%s: %w", cmd.kind, ctx.Err())
	}
}

func (s *Service) view(ctx context.Context, kind commandKind) (capture.View, error) {
	r, err := s.do(ctx, command{kind: kind})
	return r.view, err
}

// StartSession begins capturing the first missing angle.
func (s *Service) StartSession(ctx context.Context) (capture.View, error) {
	return s.view(ctx, cmdStart)
}

// Pause cancels any countdown and stops arming new ones.
func (s *Service) Pause(ctx context.Context) (capture.View, error) {
	return s.view(ctx, cmdPause)
}

// Resume continues a paused session.
func (s *Service) Resume(ctx context.Context) (capture.View, error) {
	return s.view(ctx, cmdResume)
}

// Reset discards the session for a fresh, not yet started one.
func (s *Service) Reset(ctx context.Context) (capture.View, error) {
	return s.view(ctx, cmdReset)
}

// ManualCapture takes a photo now, skipping the countdown.
func (s *Service) ManualCapture(ctx context.Context) (capture.View, error) {
	return s.view(ctx, cmdCapture)
}

// Retake drops the result for a.
func (s *Service) Retake(ctx context.Context, a angle.Index) (capture.View, error) {
	r, err := s.do(ctx, command{kind: cmdRetake, angle: a})
	return r.view, err
}

// View returns the orchestrator summary as seen by the loop.
func (s *Service) View(ctx context.Context) (capture.View, error) {
	return s.view(ctx, cmdView)
}

// Validation returns the verdict published by the last tick.
func (s *Service) Validation(ctx context.Context) (validation.PoseValidation, bool, error) {
	r, err := s.do(ctx, command{kind: cmdValidation})
	return r.validation, r.hasValidation, err
}

// Save writes the current session to the store.
func (s *Service) Save(ctx context.Context) (capture.View, error) {
	if s.store == nil {
		return capture.View{}, ErrNoStore
	}
	r, err := s.do(ctx, command{kind: cmdSnapshot})
	if err != nil {
		return capture.View{}, err
	}
	if err := s.store.Save(ctx, r.snapshot); err != nil {
		return capture.View{}, fmt.Errorf("save session %s: %w", r.snapshot.ID, err)
	}
	s.logger.Info(ctx, "session saved", logger.String("session_id", r.snapshot.ID))
	return r.view, nil
}

// Load restores a stored session and continues it. An empty id loads the
// most recently saved one.
func (s *Service) Load(ctx context.Context, id string) (capture.View, error) {
	if s.store == nil {
		return capture.View{}, ErrNoStore
	}
	var (
		snap session.Snapshot
		err  error
	)
	if id == "" {
		snap, err = s.store.Latest(ctx)
	} else {
		snap, err = s.store.Load(ctx, id)
	}
	if err != nil {
		return capture.View{}, fmt.Errorf("load session %q: %w", id, err)
	}
	restored, err := session.Restore(snap)
	if err != nil {
		return capture.View{}, fmt.Errorf("load session %q: %w", id, err)
	}
	r, err := s.do(ctx, command{kind: cmdRestore, restore: restored})
	if err != nil {
		return capture.View{}, err
	}
	s.logger.Info(ctx, "session loaded", logger.String("session_id", restored.ID()))
	return r.view, nil
}

// Delete removes a stored session. It does not touch the session the loop
// owns, even when the ids match.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.store == nil {
		return ErrNoStore
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	s.logger.Info(ctx, "session deleted", logger.String("session_id", id))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        s.started,
		"tickIntervalMs": s.tickInterval.Milliseconds(),
		"queueCapacity":  s.queueSize,
		"headTracking":   s.readings.IsTracking(),
		"deviceSensor":   s.readings.IsAvailable(),
	}

	if s.started {
		s.viewMu.RLock()
		v, ticks := s.lastView, s.ticks
		s.viewMu.RUnlock()

		queueLen := s.commands.Len()
		stats["queueLength"] = queueLen
		stats["ticks"] = ticks
		stats["state"] = string(v.State)
		stats["sessionId"] = v.SessionID
		stats["angle"] = v.AngleName
		stats["captured"] = v.Summary.Captured
		stats["totalAttempts"] = v.Summary.TotalAttempts
		if s.hub != nil {
			stats["feedbackClients"] = s.hub.ClientCount()
		}
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}
