package api

import (
	"context"
	"net/http"

	"github.com/okian/posecap/internal/domain/angle"
	"github.com/okian/posecap/internal/domain/capture"
	"github.com/okian/posecap/internal/domain/validation"
)

// SessionHandler handles the capture session routes.
type SessionHandler struct {
	deps Dependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps Dependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

type viewFunc func(ctx context.Context) (capture.View, error)

func (h *SessionHandler) respond(w http.ResponseWriter, r *http.Request, op string, fn viewFunc) {
	v, err := fn(r.Context())
	if err != nil {
		writeKindError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleGetSession handles GET /session.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.get_session", h.deps.View)
}

// validationResponse is the body of GET /validation.
type validationResponse struct {
	Available  bool                       `json:"available"`
	Status     *validation.Status         `json:"status,omitempty"`
	Validation *validation.PoseValidation `json:"validation,omitempty"`
	Message    string                     `json:"message,omitempty"`
}

// HandleGetValidation handles GET /validation.
func (h *SessionHandler) HandleGetValidation(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_validation"
	v, ok, err := h.deps.Validation(r.Context())
	if err != nil {
		writeKindError(w, op, err)
		return
	}
	resp := validationResponse{Available: ok}
	if ok {
		status := v.Status()
		resp.Status = &status
		resp.Validation = &v
		resp.Message = v.Hint.Message()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleStart handles POST /session/start.
func (h *SessionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.start_session", h.deps.StartSession)
}

// HandlePause handles POST /session/pause.
func (h *SessionHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.pause_session", h.deps.Pause)
}

// HandleResume handles POST /session/resume.
func (h *SessionHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.resume_session", h.deps.Resume)
}

// HandleReset handles POST /session/reset.
func (h *SessionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.reset_session", h.deps.Reset)
}

// HandleCapture handles POST /session/capture.
func (h *SessionHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.manual_capture", h.deps.ManualCapture)
}

// HandleRetake handles POST /session/retake/{angle}. The angle is a name
// such as "vertex" or an index.
func (h *SessionHandler) HandleRetake(w http.ResponseWriter, r *http.Request) {
	const op = "api.retake"
	a, err := angle.Parse(r.PathValue("angle"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	h.respond(w, r, op, func(ctx context.Context) (capture.View, error) {
		return h.deps.Retake(ctx, a)
	})
}

// HandleSave handles POST /session/save.
func (h *SessionHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.save_session", h.deps.Save)
}

// HandleLoad handles POST /session/load/{id}.
func (h *SessionHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.respond(w, r, "api.load_session", func(ctx context.Context) (capture.View, error) {
		return h.deps.Load(ctx, id)
	})
}

// HandleDelete handles DELETE /session/{id}. The live session is untouched.
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeKindError(w, "api.delete_session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLoadLatest handles POST /session/load.
func (h *SessionHandler) HandleLoadLatest(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "api.load_session", func(ctx context.Context) (capture.View, error) {
		return h.deps.Load(ctx, "")
	})
}
