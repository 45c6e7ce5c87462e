// Package service orchestrates triage sessions: it serializes events per
// session, runs extraction, advances the state machine and commits the
// result with optimistic concurrency control.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mediflow/triage-engine/internal/engine"
	"github.com/mediflow/triage-engine/internal/extractor"
	"github.com/mediflow/triage-engine/internal/model"
	"github.com/mediflow/triage-engine/internal/store"
	"github.com/mediflow/triage-engine/pkg/logger"
	"github.com/mediflow/triage-engine/pkg/metrics"
)

const defaultExtractTimeout = 8 * time.Second

// Publisher is the outbound event boundary. Publishing is best-effort:
// a committed advance never fails because the stream is down.
type Publisher interface {
	PublishTransition(ctx context.Context, ev *model.TransitionEvent) error
	PublishHandoff(ctx context.Context, h *model.BookingHandoff) error
}

// AdvanceInput carries one inbound event for a session.
type AdvanceInput struct {
	SessionID string
	UserID    *string
	RawText   string
	Event     model.EventKind
}

// AdvanceResult is the committed record plus the directive telling the
// caller what to say next.
type AdvanceResult struct {
	Record    *model.ConversationRecord
	Directive model.Directive
}

// TriageService drives sessions end to end.
type TriageService struct {
	store          store.SessionStore
	engine         *engine.Engine
	extractor      extractor.Extractor
	publisher      Publisher
	logger         *logger.Logger
	extractTimeout time.Duration
	now            func() time.Time

	// sessionLocks serializes advances within one session. Entries are
	// never evicted; a mutex per live session is cheap at this scale.
	sessionLocks sync.Map
}

// Option configures the service.
type Option func(*TriageService)

// WithExtractTimeout bounds how long one extraction may take before it
// degrades to no updates.
func WithExtractTimeout(d time.Duration) Option {
	return func(s *TriageService) {
		if d > 0 {
			s.extractTimeout = d
		}
	}
}

// WithClock injects a time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *TriageService) { s.now = now }
}

// NewTriageService creates the service. publisher may be nil when the
// event stream is disabled.
func NewTriageService(st store.SessionStore, eng *engine.Engine, ext extractor.Extractor, pub Publisher, log *logger.Logger, opts ...Option) *TriageService {
	s := &TriageService{
		store:          st,
		engine:         eng,
		extractor:      ext,
		publisher:      pub,
		logger:         log,
		extractTimeout: defaultExtractTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Advance processes one event for a session: load or create the record,
// extract facts from the text, run the state machine and commit. The
// conditional write is retried exactly once on a version conflict; a
// second loss surfaces as ConcurrentUpdateConflictError.
func (s *TriageService) Advance(ctx context.Context, in AdvanceInput) (*AdvanceResult, error) {
	start := s.now()

	mu := s.lockFor(in.SessionID)
	mu.Lock()
	defer mu.Unlock()

	rec, created, err := s.loadOrCreate(ctx, in)
	if err != nil {
		metrics.RecordAdvance(string(in.Event), "error", s.now().Sub(start).Seconds())
		return nil, err
	}

	update := s.extract(ctx, in, rec)

	next, directive, err := s.engine.Advance(rec, update, in.Event)
	if err != nil {
		metrics.RecordAdvance(string(in.Event), "rejected", s.now().Sub(start).Seconds())
		return nil, err
	}

	committed, err := s.commit(ctx, in, rec, next, update, created)
	if err != nil {
		metrics.RecordAdvance(string(in.Event), "error", s.now().Sub(start).Seconds())
		return nil, err
	}
	if committed.replayed {
		next = committed.rec
		directive = committed.directive
	}

	s.afterCommit(in, rec.Phase, rec.TriageLocked, next)
	metrics.RecordAdvance(string(in.Event), "ok", s.now().Sub(start).Seconds())

	return &AdvanceResult{Record: next, Directive: directive}, nil
}

// Get returns the current record for a session.
func (s *TriageService) Get(ctx context.Context, sessionID string) (*model.ConversationRecord, error) {
	return s.store.Load(ctx, sessionID)
}

func (s *TriageService) lockFor(sessionID string) *sync.Mutex {
	v, _ := s.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// loadOrCreate fetches the session record; a first message creates a
// fresh one. Non-message events for unknown sessions stay ErrNotFound.
func (s *TriageService) loadOrCreate(ctx context.Context, in AdvanceInput) (*model.ConversationRecord, bool, error) {
	rec, err := s.store.Load(ctx, in.SessionID)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) || in.Event != model.EventMessage {
		return nil, false, err
	}

	rec = model.NewConversationRecord(in.SessionID, in.UserID, s.now())
	metrics.SessionsStartedTotal.Inc()
	s.logger.Info("session started",
		zap.String("session_id", in.SessionID),
	)
	return rec, true, nil
}

// extract runs the extractor under its own deadline. Any failure,
// timeout included, degrades to "no updates" so the conversation can
// still move with a generic re-prompt.
func (s *TriageService) extract(ctx context.Context, in AdvanceInput, rec *model.ConversationRecord) *model.ExtractedUpdate {
	if s.extractor == nil || in.Event != model.EventMessage || in.RawText == "" {
		return nil
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()

	update, err := s.extractor.Extract(extractCtx, in.RawText, rec)
	if err == nil {
		return update
	}

	if errors.Is(err, context.DeadlineExceeded) {
		metrics.ExtractorTimeoutsTotal.WithLabelValues(s.extractor.Name()).Inc()
		s.logger.Warn("extraction timed out, advancing without updates",
			zap.String("session_id", in.SessionID),
			zap.String("provider", s.extractor.Name()),
		)
	} else {
		s.logger.Error("extraction failed, advancing without updates",
			zap.String("session_id", in.SessionID),
			zap.String("provider", s.extractor.Name()),
			zap.Error(err),
		)
	}
	return nil
}

type commitResult struct {
	rec       *model.ConversationRecord
	directive model.Directive
	replayed  bool
}

// commit writes the advanced record. New sessions insert at version 1.
// Existing sessions save conditionally on the loaded version; a lost
// race reloads once, replays the same update against the fresh record
// and tries again.
func (s *TriageService) commit(ctx context.Context, in AdvanceInput, loaded, next *model.ConversationRecord, update *model.ExtractedUpdate, created bool) (*commitResult, error) {
	if created {
		if err := s.store.Create(ctx, next); err != nil {
			return nil, err
		}
		return &commitResult{rec: next}, nil
	}

	err := s.store.Save(ctx, loaded.Version, next)
	if err == nil {
		return &commitResult{rec: next}, nil
	}
	if !errors.Is(err, store.ErrVersionConflict) {
		return nil, err
	}

	fresh, loadErr := s.store.Load(ctx, in.SessionID)
	if loadErr != nil {
		return nil, loadErr
	}

	replayed, directive, advErr := s.engine.Advance(fresh, update, in.Event)
	if advErr != nil {
		metrics.SaveConflictsTotal.WithLabelValues("rejected").Inc()
		return nil, advErr
	}

	if saveErr := s.store.Save(ctx, fresh.Version, replayed); saveErr != nil {
		if errors.Is(saveErr, store.ErrVersionConflict) {
			metrics.SaveConflictsTotal.WithLabelValues("lost").Inc()
			s.logger.Warn("conditional write lost twice",
				zap.String("session_id", in.SessionID),
			)
			return nil, &engine.ConcurrentUpdateConflictError{SessionID: in.SessionID}
		}
		return nil, saveErr
	}

	metrics.SaveConflictsTotal.WithLabelValues("retried").Inc()
	return &commitResult{rec: replayed, directive: directive, replayed: true}, nil
}

// afterCommit records metrics and publishes stream events for a
// committed advance. Publishing is fire-and-forget.
func (s *TriageService) afterCommit(in AdvanceInput, fromPhase model.Phase, wasLocked bool, rec *model.ConversationRecord) {
	if fromPhase != rec.Phase {
		metrics.RecordTransition(string(fromPhase), string(rec.Phase))
	}
	if !wasLocked && rec.TriageLocked && rec.Department != nil {
		metrics.TriageLocksTotal.WithLabelValues(*rec.Department, string(rec.RiskLevel)).Inc()
		s.logger.Info("triage decision locked",
			zap.String("session_id", rec.SessionID),
			zap.String("department", *rec.Department),
			zap.String("risk_level", string(rec.RiskLevel)),
		)
	}

	if s.publisher == nil || fromPhase == rec.Phase {
		return
	}

	ev := &model.TransitionEvent{
		ID:         uuid.NewString(),
		SessionID:  rec.SessionID,
		FromPhase:  fromPhase,
		ToPhase:    rec.Phase,
		EventKind:  in.Event,
		RiskLevel:  rec.RiskLevel,
		Department: rec.Department,
		Locked:     rec.TriageLocked,
		CreatedAt:  s.now(),
	}

	var handoff *model.BookingHandoff
	if rec.Phase == model.PhaseDone {
		handoff = &model.BookingHandoff{
			ID:             uuid.NewString(),
			SessionID:      rec.SessionID,
			UserID:         rec.UserID,
			Department:     rec.Department,
			RiskLevel:      rec.RiskLevel,
			BookingRequest: rec.BookingRequest,
			CreatedAt:      s.now(),
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.publisher.PublishTransition(ctx, ev); err != nil {
			s.logger.Warn("failed to publish transition",
				zap.String("session_id", ev.SessionID),
				zap.Error(err),
			)
		}
		if handoff != nil {
			if err := s.publisher.PublishHandoff(ctx, handoff); err != nil {
				s.logger.Error("failed to publish booking handoff",
					zap.String("session_id", handoff.SessionID),
					zap.Error(err),
				)
				return
			}
			metrics.HandoffsTotal.Inc()
		}
	}()
}
