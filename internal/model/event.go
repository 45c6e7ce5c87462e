package model

import (
	"time"
)

// EventKind distinguishes what triggered an advance.
type EventKind string

const (
	// EventMessage is a plain inbound patient message.
	EventMessage EventKind = "message"
	// EventResume is a no-op tick used to re-evaluate a session without
	// new input, e.g. after reconnecting.
	EventResume EventKind = "resume"
	// EventConfirm is the explicit external booking confirmation.
	EventConfirm EventKind = "confirm"
	// EventCancel backs out of booking confirmation.
	EventCancel EventKind = "cancel"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventMessage, EventResume, EventConfirm, EventCancel:
		return true
	}
	return false
}

// TransitionEvent is published to the audit stream after every committed
// advance that changed the record.
type TransitionEvent struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	FromPhase  Phase     `json:"from_phase"`
	ToPhase    Phase     `json:"to_phase"`
	EventKind  EventKind `json:"event_kind"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Department *string   `json:"department,omitempty"`
	Locked     bool      `json:"locked"`
	CreatedAt  time.Time `json:"created_at"`
}

// BookingHandoff carries the final booking request to the external
// appointment API once a session reaches its terminal phase.
type BookingHandoff struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	UserID         *string        `json:"user_id,omitempty"`
	Department     *string        `json:"department,omitempty"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	BookingRequest BookingRequest `json:"booking_request"`
	CreatedAt      time.Time      `json:"created_at"`
}
