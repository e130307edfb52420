// Package sensors holds the latest-value cells that sensor sources publish
// into and the capture loop reads from, plus the MQTT source and publisher.
package sensors

import (
	"sync"
	"time"
)

// Slot is a mutex-guarded latest-value cell. Writers overwrite, readers
// never block on the writer and never see a value older than maxAge.
type Slot[T any] struct {
	mu     sync.RWMutex
	val    T
	at     time.Time
	set    bool
	maxAge time.Duration
	now    func() time.Time
}

// NewSlot creates a Slot. A zero maxAge never expires values; a nil now
// uses time.Now.
func NewSlot[T any](maxAge time.Duration, now func() time.Time) *Slot[T] {
	if now == nil {
		now = time.Now
	}
	return &Slot[T]{maxAge: maxAge, now: now}
}

// Store replaces the value, stamped with the arrival time.
func (s *Slot[T]) Store(v T) {
	at := s.now()
	s.mu.Lock()
	s.val, s.at, s.set = v, at, true
	s.mu.Unlock()
}

// Clear empties the slot.
func (s *Slot[T]) Clear() {
	var zero T
	s.mu.Lock()
	s.val, s.at, s.set = zero, time.Time{}, false
	s.mu.Unlock()
}

// Load returns the value if one is present and fresh.
func (s *Slot[T]) Load() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zero T
	if !s.set {
		return zero, false
	}
	if s.maxAge > 0 && s.now().Sub(s.at) > s.maxAge {
		return zero, false
	}
	return s.val, true
}

// UpdatedAt returns when the slot was last written, or zero.
func (s *Slot[T]) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.at
}
