// Package engine implements the triage conversation state machine. Given
// a session record, a sparse extracted update and the triggering event it
// computes the next phase, merges facts under the lock rules and decides
// when the triage recommendation is frozen.
package engine

import (
	"time"

	"github.com/mediflow/triage-engine/internal/booking"
	"github.com/mediflow/triage-engine/internal/model"
	"github.com/mediflow/triage-engine/internal/triage"
)

const (
	// defaultLockThreshold is the minimum assessment confidence at which
	// the engine locks a triage decision.
	defaultLockThreshold = 0.5

	// maxCollectExchanges is how many patient messages the machine waits
	// for a duration before triaging on symptoms alone.
	maxCollectExchanges = 3
)

// Assessor is the triage policy boundary. Implementations must be pure:
// same inputs, same assessment.
type Assessor interface {
	Assess(symptoms, riskFactors []string, info model.PatientInfo) triage.Assessment
}

// BookingResolver validates booking-request completeness.
type BookingResolver interface {
	Resolve(req model.BookingRequest) booking.Resolution
}

// Engine advances session records. It holds no per-session state and is
// safe for concurrent use across sessions; serializing events within one
// session is the caller's job.
type Engine struct {
	assessor      Assessor
	resolver      BookingResolver
	lockThreshold float64
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLockThreshold overrides the confidence threshold for locking.
func WithLockThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 {
			e.lockThreshold = t
		}
	}
}

// WithClock injects a time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine around a triage policy and a booking resolver.
func New(assessor Assessor, resolver BookingResolver, opts ...Option) *Engine {
	e := &Engine{
		assessor:      assessor,
		resolver:      resolver,
		lockThreshold: defaultLockThreshold,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Advance computes the next record and the outbound directive. The input
// record is never mutated: the returned record is a deep copy, so a
// caller that fails to persist it leaves the session unchanged.
func (e *Engine) Advance(rec *model.ConversationRecord, update *model.ExtractedUpdate, event model.EventKind) (*model.ConversationRecord, model.Directive, error) {
	if !rec.Phase.Valid() || rec.Phase.Terminal() {
		return nil, model.RetryDirective(rec.Phase), &InvalidSessionStateError{
			SessionID: rec.SessionID,
			Phase:     rec.Phase,
		}
	}

	work := rec.Clone()

	newSymptoms := false
	if update != nil {
		newSymptoms = mergeUpdate(work, update)
	}
	if event == model.EventMessage &&
		(work.Phase == model.PhaseCollectingSymptoms || work.Phase == model.PhaseBackToTriage) {
		work.Exchanges++
	}

	var directive model.Directive
	switch work.Phase {
	case model.PhaseGreeting:
		directive = e.advanceGreeting(work, event)
	case model.PhaseCollectingSymptoms, model.PhaseBackToTriage:
		directive = e.advanceCollecting(work, event)
	case model.PhaseTriageDepartment:
		directive = e.advanceTriage(work, event, newSymptoms)
	case model.PhaseBookingOptions:
		directive = e.advanceBooking(work, event)
	case model.PhaseConfirmBooking:
		directive = e.advanceConfirm(work, event)
	}

	work.LastUpdatedAt = e.now()
	return work, directive, nil
}

// advanceGreeting moves on as soon as the patient says anything at all.
func (e *Engine) advanceGreeting(w *model.ConversationRecord, event model.EventKind) model.Directive {
	if event != model.EventMessage {
		return model.Directive{Phase: model.PhaseGreeting, PromptKind: model.PromptGreeting}
	}
	w.Phase = model.PhaseCollectingSymptoms
	return model.Directive{Phase: w.Phase, PromptKind: model.PromptAskSymptoms}
}

// advanceCollecting gathers symptoms until the completeness gate is met:
// at least one symptom plus either a known duration or three exchanges.
// An emergency assessment bypasses the gate entirely.
func (e *Engine) advanceCollecting(w *model.ConversationRecord, event model.EventKind) model.Directive {
	if len(w.Symptoms) == 0 {
		return model.Directive{Phase: w.Phase, PromptKind: model.PromptAskSymptoms}
	}

	a := e.assessor.Assess(w.Symptoms, w.RiskFactors, w.PatientInfo)
	e.escalate(w, a.RiskLevel)

	ready := w.Duration != nil ||
		w.Exchanges >= maxCollectExchanges ||
		a.RiskLevel == model.RiskEmergency
	if !ready {
		return model.Directive{Phase: w.Phase, PromptKind: model.PromptAskDuration, RiskLevel: w.RiskLevel}
	}

	w.Phase = model.PhaseTriageDepartment
	return e.evaluateTriage(w, event, a)
}

// advanceTriage handles events arriving while the session sits at the
// triage phase. A locked decision is frozen for the rest of the session:
// late symptoms are still recorded but never re-open the assessment.
// While unlocked, materially new symptoms send the session back for a
// re-evaluation pass instead of locking over a moving target.
func (e *Engine) advanceTriage(w *model.ConversationRecord, event model.EventKind, newSymptoms bool) model.Directive {
	if w.TriageLocked {
		if w.BookingIntent {
			w.Phase = model.PhaseBookingOptions
			return e.advanceBooking(w, event)
		}
		return model.Directive{
			Phase:      w.Phase,
			PromptKind: model.PromptAskBookingIntent,
			Department: w.Department,
			RiskLevel:  w.RiskLevel,
		}
	}

	a := e.assessor.Assess(w.Symptoms, w.RiskFactors, w.PatientInfo)
	e.escalate(w, a.RiskLevel)

	if newSymptoms && a.RiskLevel != model.RiskEmergency {
		w.Phase = model.PhaseBackToTriage
		w.Exchanges = 0
		return model.Directive{Phase: w.Phase, PromptKind: model.PromptAskDuration, RiskLevel: w.RiskLevel}
	}

	return e.evaluateTriage(w, event, a)
}

// evaluateTriage locks the assessment when its confidence clears the
// threshold, otherwise re-prompts for more symptoms.
func (e *Engine) evaluateTriage(w *model.ConversationRecord, event model.EventKind, a triage.Assessment) model.Directive {
	if a.Department == "" || a.Confidence < e.lockThreshold {
		return model.Directive{Phase: w.Phase, PromptKind: model.PromptAskSymptoms, RiskLevel: w.RiskLevel}
	}

	dept := a.Department
	w.TriageLocked = true
	w.Department = &dept
	w.TriageReason = a.Reason

	if w.BookingIntent {
		w.Phase = model.PhaseBookingOptions
		return e.advanceBooking(w, event)
	}
	return model.Directive{
		Phase:      w.Phase,
		PromptKind: model.PromptAskBookingIntent,
		Department: w.Department,
		RiskLevel:  w.RiskLevel,
	}
}

// advanceBooking delegates to the resolver; a complete request moves the
// session to confirmation, an incomplete one names the missing fields in
// their fixed priority order.
func (e *Engine) advanceBooking(w *model.ConversationRecord, event model.EventKind) model.Directive {
	res := e.resolver.Resolve(w.BookingRequest)

	if !res.Ready || event == model.EventCancel {
		return model.Directive{
			Phase:         w.Phase,
			PromptKind:    model.PromptAskBookingField,
			MissingFields: res.MissingFields,
			Department:    w.Department,
			RiskLevel:     w.RiskLevel,
		}
	}

	w.Phase = model.PhaseConfirmBooking
	return model.Directive{
		Phase:      w.Phase,
		PromptKind: model.PromptConfirmBooking,
		Department: w.Department,
		RiskLevel:  w.RiskLevel,
	}
}

// advanceConfirm waits for the explicit external confirmation. Only here
// does the booking status move to confirmed; cancellation backs out to
// the booking phase with every collected field preserved.
func (e *Engine) advanceConfirm(w *model.ConversationRecord, event model.EventKind) model.Directive {
	switch event {
	case model.EventConfirm:
		w.BookingRequest.Status = model.BookingConfirmed
		w.Phase = model.PhaseDone
		return model.Directive{
			Phase:      w.Phase,
			PromptKind: model.PromptSessionDone,
			Department: w.Department,
			RiskLevel:  w.RiskLevel,
		}
	case model.EventCancel:
		w.Phase = model.PhaseBookingOptions
		res := e.resolver.Resolve(w.BookingRequest)
		return model.Directive{
			Phase:         w.Phase,
			PromptKind:    model.PromptAskBookingField,
			MissingFields: res.MissingFields,
			Department:    w.Department,
			RiskLevel:     w.RiskLevel,
		}
	default:
		return model.Directive{
			Phase:      w.Phase,
			PromptKind: model.PromptConfirmBooking,
			Department: w.Department,
			RiskLevel:  w.RiskLevel,
		}
	}
}

// escalate raises the risk level while the triage is unlocked; it never
// lowers it, and a locked session's level is immutable.
func (e *Engine) escalate(w *model.ConversationRecord, to model.RiskLevel) {
	if w.TriageLocked {
		return
	}
	w.RiskLevel = w.RiskLevel.Max(to)
}
