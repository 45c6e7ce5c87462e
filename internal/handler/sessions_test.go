package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mediflow/triage-engine/internal/engine"
	"github.com/mediflow/triage-engine/internal/model"
	"github.com/mediflow/triage-engine/internal/service"
	"github.com/mediflow/triage-engine/internal/store"
	"github.com/mediflow/triage-engine/pkg/logger"
)

const sessionID = "3b8f2a9e-1d6c-4e4b-9f1a-7c2d5e8b0a31"

type fakeService struct {
	result    *service.AdvanceResult
	record    *model.ConversationRecord
	err       error
	lastInput service.AdvanceInput
}

func (f *fakeService) Advance(_ context.Context, in service.AdvanceInput) (*service.AdvanceResult, error) {
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeService) Get(context.Context, string) (*model.ConversationRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func newRouter(svc SessionService) *chi.Mux {
	h := NewSessionHandler(svc, logger.NewNop())
	r := chi.NewRouter()
	r.Route("/api/v1/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/messages", h.Message)
		r.Post("/events", h.Event)
	})
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMessageEndpoint(t *testing.T) {
	record := model.NewConversationRecord(sessionID, nil, time.Now())
	record.Phase = model.PhaseCollectingSymptoms
	svc := &fakeService{
		result: &service.AdvanceResult{
			Record:    record,
			Directive: model.Directive{Phase: model.PhaseCollectingSymptoms, PromptKind: model.PromptAskSymptoms},
		},
	}
	r := newRouter(svc)

	t.Run("accepted message", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", `{"text":"I have a headache"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			SessionID string          `json:"session_id"`
			Directive model.Directive `json:"directive"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, sessionID, resp.SessionID)
		require.Equal(t, model.PromptAskSymptoms, resp.Directive.PromptKind)

		require.Equal(t, model.EventMessage, svc.lastInput.Event)
		require.Equal(t, "I have a headache", svc.lastInput.RawText)
	})

	t.Run("invalid session id", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/not-a-uuid/messages", `{"text":"hi"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty text", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", `{"text":""}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", `{`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEventEndpoint(t *testing.T) {
	record := model.NewConversationRecord(sessionID, nil, time.Now())
	svc := &fakeService{
		result: &service.AdvanceResult{
			Record:    record,
			Directive: model.Directive{Phase: model.PhaseDone, PromptKind: model.PromptSessionDone},
		},
	}
	r := newRouter(svc)

	t.Run("confirm event", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+sessionID+"/events", `{"event":"confirm"}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, model.EventConfirm, svc.lastInput.Event)
	})

	t.Run("unknown event kind", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+sessionID+"/events", `{"event":"explode"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("message kind rejected here", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+sessionID+"/events", `{"event":"message"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdvanceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "unknown session",
			err:        store.ErrNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "terminal session",
			err:        &engine.InvalidSessionStateError{SessionID: sessionID, Phase: model.PhaseDone},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "concurrent conflict",
			err:        &engine.ConcurrentUpdateConflictError{SessionID: sessionID},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "store unavailable",
			err:        store.ErrUnavailable,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&fakeService{err: tt.err})
			w := doJSON(t, r, http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", `{"text":"hello"}`)
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestGetEndpoint(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		record := model.NewConversationRecord(sessionID, nil, time.Now())
		r := newRouter(&fakeService{record: record})

		w := doJSON(t, r, http.MethodGet, "/api/v1/sessions/"+sessionID, "")
		require.Equal(t, http.StatusOK, w.Code)

		var got model.ConversationRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Equal(t, sessionID, got.SessionID)
		require.Equal(t, model.PhaseGreeting, got.Phase)
	})

	t.Run("not found", func(t *testing.T) {
		r := newRouter(&fakeService{err: store.ErrNotFound})
		w := doJSON(t, r, http.MethodGet, "/api/v1/sessions/"+sessionID, "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}
