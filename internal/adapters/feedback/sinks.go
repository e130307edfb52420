// Package feedback delivers capture feedback events to listeners: websocket
// clients, logs and in-memory recorders.
package feedback

import (
	"context"
	"sync"

	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/pkg/logger"
)

// Sink receives feedback events. Emit must not block.
type Sink interface {
	Emit(e model.FeedbackEvent)
}

// Fanout forwards every event to each sink in order.
type Fanout []Sink

// Emit forwards e.
func (f Fanout) Emit(e model.FeedbackEvent) {
	for _, s := range f {
		if s != nil {
			s.Emit(e)
		}
	}
}

// LogSink writes events to a logger. Proximity updates go to Debug.
type LogSink struct {
	Logger logger.Logger
}

// Emit logs e.
func (l LogSink) Emit(e model.FeedbackEvent) {
	if l.Logger == nil {
		return
	}
	fields := []logger.Field{
		logger.String("kind", string(e.Kind)),
		logger.Int("angle", e.Angle),
	}
	switch e.Kind {
	case model.FeedbackProximity:
		l.Logger.Debug(context.Background(), "feedback", append(fields, logger.Float64("progress", e.Progress))...)
	case model.FeedbackCountdown:
		l.Logger.Info(context.Background(), "feedback", append(fields, logger.Int("count", e.Count))...)
	case model.FeedbackError:
		l.Logger.Info(context.Background(), "feedback", append(fields, logger.String("reason", string(e.Reason)))...)
	default:
		l.Logger.Info(context.Background(), "feedback", fields...)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []model.FeedbackEvent
}

// Emit records e.
func (r *Recorder) Emit(e model.FeedbackEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []model.FeedbackEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.FeedbackEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind model.FeedbackKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets all events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
