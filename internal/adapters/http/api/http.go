// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	commandqueue "github.com/okian/posecap/internal/adapters/mq/queue"
	"github.com/okian/posecap/internal/adapters/repository"
	service "github.com/okian/posecap/internal/app"
	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/capture"
	"github.com/okian/posecap/internal/domain/session"
	"github.com/okian/posecap/internal/domain/validation"
)

// Dependencies required by HTTP handlers. Every call is answered by the
// capture loop, so implementations serialize them.
type Dependencies interface {
	StartSession(ctx context.Context) (capture.View, error)
	Pause(ctx context.Context) (capture.View, error)
	Resume(ctx context.Context) (capture.View, error)
	Reset(ctx context.Context) (capture.View, error)
	ManualCapture(ctx context.Context) (capture.View, error)
	Retake(ctx context.Context, a angle.Index) (capture.View, error)
	View(ctx context.Context) (capture.View, error)
	Validation(ctx context.Context) (validation.PoseValidation, bool, error)

	// Save, Load and Delete go through the session store. An empty id loads
	// the latest.
	Save(ctx context.Context) (capture.View, error)
	Load(ctx context.Context, id string) (capture.View, error)
	Delete(ctx context.Context, id string) error
}

// Server wires HTTP routes for the control API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	sessionHandler *SessionHandler
	feedback       http.Handler
}

// NewServer creates a new API server with all handlers. feedback serves the
// websocket stream and may be nil.
func NewServer(deps Dependencies, statsProvider StatsProvider, feedback http.Handler) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		sessionHandler: NewSessionHandler(deps),
		feedback:       feedback,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	h := s.sessionHandler
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /session", MetricsMiddleware(h.HandleGetSession, "session"))
	mux.HandleFunc("GET /validation", MetricsMiddleware(h.HandleGetValidation, "validation"))
	mux.HandleFunc("POST /session/start", MetricsMiddleware(h.HandleStart, "session_start"))
	mux.HandleFunc("POST /session/pause", MetricsMiddleware(h.HandlePause, "session_pause"))
	mux.HandleFunc("POST /session/resume", MetricsMiddleware(h.HandleResume, "session_resume"))
	mux.HandleFunc("POST /session/reset", MetricsMiddleware(h.HandleReset, "session_reset"))
	mux.HandleFunc("POST /session/capture", MetricsMiddleware(h.HandleCapture, "session_capture"))
	mux.HandleFunc("POST /session/retake/{angle}", MetricsMiddleware(h.HandleRetake, "session_retake"))
	mux.HandleFunc("POST /session/save", MetricsMiddleware(h.HandleSave, "session_save"))
	mux.HandleFunc("POST /session/load", MetricsMiddleware(h.HandleLoadLatest, "session_load"))
	mux.HandleFunc("POST /session/load/{id}", MetricsMiddleware(h.HandleLoad, "session_load"))
	mux.HandleFunc("DELETE /session/{id}", MetricsMiddleware(h.HandleDelete, "session_delete"))

	if s.feedback != nil {
		mux.HandleFunc("GET /feedback", MetricsMiddleware(s.feedback.ServeHTTP, "feedback"))
	}
}

type errorResponse struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	UserMessage string `json:"user_message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, UserMessage: capture.UserMessage(err)})
}

// classify maps an upstream error onto an API kind.
func classify(err error) error {
	switch {
	case errors.Is(err, angle.ErrInvalidAngle),
		errors.Is(err, session.ErrInvalidSnapshot),
		errors.Is(err, ErrBadRequest):
		return ErrBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, commandqueue.ErrQueueFull):
		return ErrBackpressure
	case errors.Is(err, service.ErrNotRunning),
		errors.Is(err, service.ErrNoStore),
		errors.Is(err, repository.ErrClosed):
		return ErrUnavailable
	case errors.Is(err, capture.ErrFaceNotDetected),
		errors.Is(err, capture.ErrCaptureInFlight),
		errors.Is(err, capture.ErrSessionComplete),
		errors.Is(err, capture.ErrSessionActive),
		errors.Is(err, capture.ErrNotStarted),
		errors.Is(err, capture.ErrPaused),
		errors.Is(err, capture.ErrNotPaused),
		errors.Is(err, session.ErrResultExists):
		return ErrConflict
	}
	return nil
}

// writeKindError answers with the status that matches err's kind.
func writeKindError(w http.ResponseWriter, op string, err error) {
	kind := classify(err)
	switch kind {
	case ErrBadRequest:
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, kind, err))
	case ErrNotFound:
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, kind, err))
	case ErrBackpressure:
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, kind, err))
	case ErrUnavailable:
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, kind, err))
	case ErrConflict:
		writeError(w, http.StatusConflict, "conflict", WrapKind(op, kind, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
