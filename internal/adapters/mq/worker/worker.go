// Package worker runs camera captures off the control loop and reports each
// outcome back on a completion channel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/posecap/internal/domain/capture"
	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/pkg/logger"
	"github.com/okian/posecap/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultCaptureTimeout = 5 * time.Second
	completionBuffer      = 4
)

// Sentinel kinds for worker errors.
var (
	ErrBusy    = errors.New("capture worker busy")
	ErrStopped = errors.New("capture worker stopped")
)

// Camera takes one photo per call.
type Camera interface {
	CapturePhoto(ctx context.Context) (model.ImageHandle, error)
}

// Completion is the outcome of one capture request.
type Completion struct {
	Request  capture.Request
	Image    model.ImageHandle
	Err      error
	Duration time.Duration
}

// Worker processes capture requests.
type Worker interface {
	// Submit hands a request over without blocking.
	Submit(req capture.Request) error

	// Completions delivers one Completion per accepted request.
	Completions() <-chan Completion

	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker. An in-flight capture is allowed to finish.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker executes at most one capture at a time.
type InMemoryWorker struct {
	camera  Camera
	name    string
	timeout time.Duration

	jobs        chan capture.Request
	completions chan Completion

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}
	once     sync.Once

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(cam Camera, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		camera:      cam,
		name:        "capture-worker",
		timeout:     defaultCaptureTimeout,
		jobs:        make(chan capture.Request, 1),
		completions: make(chan Completion, completionBuffer),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Submit queues req. It returns ErrBusy when a request is already waiting.
func (w *InMemoryWorker) Submit(req capture.Request) error {
	select {
	case <-w.shutdown:
		return ErrStopped
	default:
	}
	select {
	case w.jobs <- req:
		return nil
	default:
		metrics.RecordErrorByComponent("worker", "busy")
		return fmt.Errorf("submit %d: %w", req.Token, ErrBusy)
	}
}

// Completions returns the outcome channel.
func (w *InMemoryWorker) Completions() <-chan Completion {
	return w.completions
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case req := <-w.jobs:
			c := w.process(ctx, req)
			select {
			case w.completions <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.once.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, req capture.Request) Completion {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	img, err := w.camera.CapturePhoto(cctx)
	c := Completion{Request: req, Image: img, Err: err, Duration: time.Since(start)}
	if err != nil {
		metrics.RecordErrorByComponent("worker", "capture_error")
		w.logger.Warn(ctx, "camera capture failed",
			logger.Any("token", req.Token),
			logger.String("angle", req.Angle.String()),
			logger.Error(err))
		return c
	}
	w.logger.Debug(ctx, "camera capture done",
		logger.Any("token", req.Token),
		logger.String("image_id", img.ID),
		logger.Duration("took", c.Duration))
	return c
}
