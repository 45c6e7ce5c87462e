package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediflow/triage-engine/internal/booking"
	"github.com/mediflow/triage-engine/internal/engine"
	"github.com/mediflow/triage-engine/internal/extractor"
	"github.com/mediflow/triage-engine/internal/model"
	"github.com/mediflow/triage-engine/internal/store"
	"github.com/mediflow/triage-engine/internal/triage"
	"github.com/mediflow/triage-engine/pkg/logger"
)

type slowExtractor struct{}

func (slowExtractor) Extract(ctx context.Context, _ string, _ *model.ConversationRecord) (*model.ExtractedUpdate, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowExtractor) Name() string { return "slow" }

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string, *model.ConversationRecord) (*model.ExtractedUpdate, error) {
	return nil, errors.New("provider exploded")
}

func (failingExtractor) Name() string { return "failing" }

// conflictStore injects version conflicts on the first n saves.
type conflictStore struct {
	store.SessionStore
	mu        sync.Mutex
	conflicts int
}

func (s *conflictStore) Save(ctx context.Context, previousVersion int64, rec *model.ConversationRecord) error {
	s.mu.Lock()
	inject := s.conflicts > 0
	if inject {
		s.conflicts--
	}
	s.mu.Unlock()

	if inject {
		return store.ErrVersionConflict
	}
	return s.SessionStore.Save(ctx, previousVersion, rec)
}

type capturingPublisher struct {
	mu          sync.Mutex
	transitions []*model.TransitionEvent
	handoffs    []*model.BookingHandoff
	published   chan struct{}
}

func newCapturingPublisher() *capturingPublisher {
	return &capturingPublisher{published: make(chan struct{}, 16)}
}

func (p *capturingPublisher) PublishTransition(_ context.Context, ev *model.TransitionEvent) error {
	p.mu.Lock()
	p.transitions = append(p.transitions, ev)
	p.mu.Unlock()
	p.published <- struct{}{}
	return nil
}

func (p *capturingPublisher) PublishHandoff(_ context.Context, h *model.BookingHandoff) error {
	p.mu.Lock()
	p.handoffs = append(p.handoffs, h)
	p.mu.Unlock()
	p.published <- struct{}{}
	return nil
}

func (p *capturingPublisher) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-p.published:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for publish %d of %d", i+1, n)
		}
	}
}

func newTestEngine() *engine.Engine {
	return engine.New(triage.NewPolicy(triage.DefaultRules()), booking.Resolver{})
}

func newService(st store.SessionStore, ext extractor.Extractor, pub Publisher, opts ...Option) *TriageService {
	return NewTriageService(st, newTestEngine(), ext, pub, logger.NewNop(), opts...)
}

const sessionID = "3b8f2a9e-1d6c-4e4b-9f1a-7c2d5e8b0a31"

func TestAdvanceCreatesSessionOnFirstMessage(t *testing.T) {
	ctx := context.Background()
	svc := newService(store.NewMemoryStore(), nil, nil)

	result, err := svc.Advance(ctx, AdvanceInput{
		SessionID: sessionID,
		RawText:   "hello",
		Event:     model.EventMessage,
	})
	require.NoError(t, err)
	require.Equal(t, model.PhaseCollectingSymptoms, result.Record.Phase)
	require.Equal(t, model.PromptAskSymptoms, result.Directive.PromptKind)
	require.Equal(t, int64(1), result.Record.Version)

	loaded, err := svc.Get(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, model.PhaseCollectingSymptoms, loaded.Phase)
}

func TestAdvanceUnknownSessionNonMessage(t *testing.T) {
	ctx := context.Background()
	svc := newService(store.NewMemoryStore(), nil, nil)

	_, err := svc.Advance(ctx, AdvanceInput{
		SessionID: sessionID,
		Event:     model.EventResume,
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdvanceExtractionDegradesToNoUpdates(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		ext  extractor.Extractor
	}{
		{name: "timeout", ext: slowExtractor{}},
		{name: "provider error", ext: failingExtractor{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(store.NewMemoryStore(), tt.ext, nil,
				WithExtractTimeout(20*time.Millisecond))

			result, err := svc.Advance(ctx, AdvanceInput{
				SessionID: sessionID,
				RawText:   "I have chest pain",
				Event:     model.EventMessage,
			})
			require.NoError(t, err)
			// Nothing was extracted, so the session just moves on and
			// asks for symptoms again.
			require.Equal(t, model.PhaseCollectingSymptoms, result.Record.Phase)
			require.Empty(t, result.Record.Symptoms)
		})
	}
}

func TestAdvanceRetriesOnceOnConflict(t *testing.T) {
	ctx := context.Background()

	mem := store.NewMemoryStore()
	cs := &conflictStore{SessionStore: mem, conflicts: 1}
	svc := newService(cs, extractor.NewKeywordExtractor(triage.DefaultRules()), nil)

	_, err := svc.Advance(ctx, AdvanceInput{
		SessionID: sessionID,
		RawText:   "hello",
		Event:     model.EventMessage,
	})
	require.NoError(t, err)

	result, err := svc.Advance(ctx, AdvanceInput{
		SessionID: sessionID,
		RawText:   "I have a headache",
		Event:     model.EventMessage,
	})
	require.NoError(t, err)
	require.Contains(t, result.Record.Symptoms, "headache")
	require.Equal(t, int64(2), result.Record.Version)
}

func TestAdvanceSurfacesDoubleConflict(t *testing.T) {
	ctx := context.Background()

	mem := store.NewMemoryStore()
	cs := &conflictStore{SessionStore: mem, conflicts: 2}
	svc := newService(cs, nil, nil)

	_, err := svc.Advance(ctx, AdvanceInput{
		SessionID: sessionID,
		RawText:   "hello",
		Event:     model.EventMessage,
	})
	require.NoError(t, err)

	_, err = svc.Advance(ctx, AdvanceInput{
		SessionID: sessionID,
		RawText:   "still here",
		Event:     model.EventMessage,
	})
	var conflict *engine.ConcurrentUpdateConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, sessionID, conflict.SessionID)

	// The record is unchanged by the failed advance.
	loaded, err := svc.Get(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, model.PhaseCollectingSymptoms, loaded.Phase)
	require.Equal(t, int64(1), loaded.Version)
}

func TestAdvancePublishesTransitions(t *testing.T) {
	ctx := context.Background()
	pub := newCapturingPublisher()
	svc := newService(store.NewMemoryStore(), nil, pub)

	_, err := svc.Advance(ctx, AdvanceInput{
		SessionID: sessionID,
		RawText:   "hello",
		Event:     model.EventMessage,
	})
	require.NoError(t, err)

	pub.wait(t, 1)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.transitions, 1)
	require.Equal(t, model.PhaseGreeting, pub.transitions[0].FromPhase)
	require.Equal(t, model.PhaseCollectingSymptoms, pub.transitions[0].ToPhase)
	require.Empty(t, pub.handoffs)
}

func TestFullConversationFlow(t *testing.T) {
	ctx := context.Background()
	pub := newCapturingPublisher()
	svc := newService(store.NewMemoryStore(), extractor.NewKeywordExtractor(triage.DefaultRules()), pub)

	say := func(text string) *AdvanceResult {
		t.Helper()
		result, err := svc.Advance(ctx, AdvanceInput{
			SessionID: sessionID,
			RawText:   text,
			Event:     model.EventMessage,
		})
		require.NoError(t, err)
		return result
	}

	// Greeting.
	r := say("hi there")
	require.Equal(t, model.PhaseCollectingSymptoms, r.Record.Phase)

	// Symptoms without duration.
	r = say("I've got a headache and some dizziness")
	require.Equal(t, model.PhaseCollectingSymptoms, r.Record.Phase)
	require.Equal(t, model.PromptAskDuration, r.Directive.PromptKind)

	// Duration arrives; triage locks on neurology.
	r = say("it's been going on for two days")
	require.Equal(t, model.PhaseTriageDepartment, r.Record.Phase)
	require.True(t, r.Record.TriageLocked)
	require.Equal(t, "neurology", *r.Record.Department)
	require.Equal(t, model.PromptAskBookingIntent, r.Directive.PromptKind)

	// Patient wants an appointment.
	r = say("yes please book me an appointment")
	require.Equal(t, model.PhaseBookingOptions, r.Record.Phase)
	require.Equal(t,
		[]string{model.FieldHospitalID, model.FieldDepartmentID, model.FieldPreferredTime},
		r.Directive.MissingFields)

	// Booking details come from an out-of-band picker rather than free
	// text; simulate the record being filled the way the UI would.
	rec, err := svc.Get(ctx, sessionID)
	require.NoError(t, err)
	hosp, dep, when := "hosp-1", "dep-77", "2025-06-02T09:00"
	rec.BookingRequest.HospitalID = &hosp
	rec.BookingRequest.DepartmentID = &dep
	rec.BookingRequest.PreferredTime = &when
	require.NoError(t, svc.store.Save(ctx, rec.Version, rec))

	// Complete request moves to confirmation.
	result, err := svc.Advance(ctx, AdvanceInput{SessionID: sessionID, Event: model.EventResume})
	require.NoError(t, err)
	require.Equal(t, model.PhaseConfirmBooking, result.Record.Phase)

	// External confirmation completes the session and hands off.
	result, err = svc.Advance(ctx, AdvanceInput{SessionID: sessionID, Event: model.EventConfirm})
	require.NoError(t, err)
	require.Equal(t, model.PhaseDone, result.Record.Phase)
	require.Equal(t, model.BookingConfirmed, result.Record.BookingRequest.Status)

	// The handoff goes out asynchronously after the final advance.
	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.handoffs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	pub.mu.Lock()
	require.Equal(t, sessionID, pub.handoffs[0].SessionID)
	require.Equal(t, model.BookingConfirmed, pub.handoffs[0].BookingRequest.Status)
	pub.mu.Unlock()

	// A terminal session rejects further events.
	_, err = svc.Advance(ctx, AdvanceInput{SessionID: sessionID, RawText: "hello?", Event: model.EventMessage})
	var stateErr *engine.InvalidSessionStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestAdvanceSerializesPerSession(t *testing.T) {
	ctx := context.Background()
	svc := newService(store.NewMemoryStore(), extractor.NewKeywordExtractor(triage.DefaultRules()), nil)

	_, err := svc.Advance(ctx, AdvanceInput{
		SessionID: sessionID,
		RawText:   "hello",
		Event:     model.EventMessage,
	})
	require.NoError(t, err)

	// Concurrent messages for the same session must all commit; the
	// per-session lock turns them into a sequence of clean advances.
	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Advance(ctx, AdvanceInput{
				SessionID: sessionID,
				RawText:   "I have a headache",
				Event:     model.EventMessage,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	loaded, err := svc.Get(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, int64(9), loaded.Version)
	require.Equal(t, []string{"headache"}, loaded.Symptoms)
}
