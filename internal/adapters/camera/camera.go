// Package camera provides the photo-taking collaborator. The simulated
// camera stands in for device hardware in the service and the simulator.
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/posecap/internal/domain/model"
)

// ErrCameraUnavailable is returned while the camera is set to fail.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Camera takes one photo per call.
type Camera interface {
	CapturePhoto(ctx context.Context) (model.ImageHandle, error)
}

// Simulated returns a fresh uuid handle after a fixed latency.
type Simulated struct {
	latency time.Duration
	uriBase string

	mu       sync.Mutex
	failNext int
	failAll  bool
	captured int
}

// Option applies a configuration option to the Simulated camera.
type Option func(*Simulated)

// WithLatency sets the simulated shutter latency.
func WithLatency(d time.Duration) Option {
	return func(s *Simulated) {
		if d >= 0 {
			s.latency = d
		}
	}
}

// WithURIBase sets the prefix for image URIs.
func WithURIBase(base string) Option {
	return func(s *Simulated) {
		s.uriBase = base
	}
}

// NewSimulated creates a simulated camera.
func NewSimulated(opts ...Option) *Simulated {
	s := &Simulated{latency: 150 * time.Millisecond, uriBase: "mem://images/"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailNext makes the next n captures fail.
func (s *Simulated) FailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// SetFailing makes every capture fail until cleared.
func (s *Simulated) SetFailing(fail bool) {
	s.mu.Lock()
	s.failAll = fail
	s.mu.Unlock()
}

// Captured returns the number of successful captures.
func (s *Simulated) Captured() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured
}

// CapturePhoto waits for the latency, then returns a handle or an error.
func (s *Simulated) CapturePhoto(ctx context.Context) (model.ImageHandle, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return model.ImageHandle{}, fmt.Errorf("capture: %w", ctx.Err())
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return model.ImageHandle{}, ErrCameraUnavailable
	}
	if s.failNext > 0 {
		s.failNext--
		return model.ImageHandle{}, ErrCameraUnavailable
	}
	id := uuid.NewString()
	s.captured++
	return model.ImageHandle{ID: id, URI: s.uriBase + id + ".jpg"}, nil
}
