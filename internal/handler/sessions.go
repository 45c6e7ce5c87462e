// Package handler exposes the triage session API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mediflow/triage-engine/internal/engine"
	"github.com/mediflow/triage-engine/internal/middleware"
	"github.com/mediflow/triage-engine/internal/model"
	"github.com/mediflow/triage-engine/internal/service"
	"github.com/mediflow/triage-engine/internal/store"
	"github.com/mediflow/triage-engine/pkg/logger"
)

// SessionService is the slice of the triage service the handlers need.
type SessionService interface {
	Advance(ctx context.Context, in service.AdvanceInput) (*service.AdvanceResult, error)
	Get(ctx context.Context, sessionID string) (*model.ConversationRecord, error)
}

// SessionHandler handles triage session endpoints.
type SessionHandler struct {
	service SessionService
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc SessionService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  log,
	}
}

// messageRequest is the body for POST .../messages.
type messageRequest struct {
	Text string `json:"text"`
}

// eventRequest is the body for POST .../events.
type eventRequest struct {
	Event string `json:"event"`
}

// advanceResponse is returned after every accepted advance.
type advanceResponse struct {
	SessionID string                    `json:"session_id"`
	Directive model.Directive           `json:"directive"`
	Record    *model.ConversationRecord `json:"record"`
}

// Message handles POST /api/v1/sessions/:id/messages
func (h *SessionHandler) Message(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.advance(w, r, service.AdvanceInput{
		SessionID: sessionID,
		UserID:    userIDFrom(r.Context()),
		RawText:   req.Text,
		Event:     model.EventMessage,
	})
}

// Event handles POST /api/v1/sessions/:id/events
func (h *SessionHandler) Event(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateEventKind(req.Event); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if model.EventKind(req.Event) == model.EventMessage {
		writeError(w, http.StatusBadRequest, "message events must carry text, use the messages endpoint")
		return
	}

	h.advance(w, r, service.AdvanceInput{
		SessionID: sessionID,
		UserID:    userIDFrom(r.Context()),
		Event:     model.EventKind(req.Event),
	})
}

// Get handles GET /api/v1/sessions/:id
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.service.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("failed to load session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *SessionHandler) advance(w http.ResponseWriter, r *http.Request, in service.AdvanceInput) {
	result, err := h.service.Advance(r.Context(), in)
	if err != nil {
		h.writeAdvanceError(w, in, err)
		return
	}

	writeJSON(w, http.StatusOK, &advanceResponse{
		SessionID: in.SessionID,
		Directive: result.Directive,
		Record:    result.Record,
	})
}

// writeAdvanceError maps service errors onto API responses. Conflicts
// and invalid states carry a retry directive so the presentation layer
// can re-prompt the patient instead of showing an internal error.
func (h *SessionHandler) writeAdvanceError(w http.ResponseWriter, in service.AdvanceInput, err error) {
	var invalidState *engine.InvalidSessionStateError
	var conflict *engine.ConcurrentUpdateConflictError

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.As(err, &invalidState):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "session accepts no further events",
			"directive": model.RetryDirective(invalidState.Phase),
		})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "session is busy, please retry",
			"directive": model.RetryDirective(""),
		})
	case errors.Is(err, store.ErrUnavailable):
		h.logger.Error("session store unavailable",
			zap.String("session_id", in.SessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusServiceUnavailable, "session store unavailable")
	default:
		h.logger.Error("advance failed",
			zap.String("session_id", in.SessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func userIDFrom(ctx context.Context) *string {
	if id := middleware.GetUserID(ctx); id != "" {
		return &id
	}
	return nil
}
