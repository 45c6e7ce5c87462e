// Package model defines data structures for the triage conversation engine.
package model

import (
	"time"
)

// Phase is the current state of a triage conversation.
type Phase string

const (
	PhaseGreeting           Phase = "greeting"
	PhaseCollectingSymptoms Phase = "collecting_symptoms"
	PhaseTriageDepartment   Phase = "triage_department"
	PhaseBackToTriage       Phase = "back_to_triage"
	PhaseBookingOptions     Phase = "booking_options"
	PhaseConfirmBooking     Phase = "confirm_booking"
	PhaseDone               Phase = "done"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseGreeting, PhaseCollectingSymptoms, PhaseTriageDepartment,
		PhaseBackToTriage, PhaseBookingOptions, PhaseConfirmBooking, PhaseDone:
		return true
	}
	return false
}

// Terminal reports whether the phase accepts no further events.
func (p Phase) Terminal() bool {
	return p == PhaseDone
}

// RiskLevel is the assessed urgency of a session.
type RiskLevel string

const (
	RiskNormal    RiskLevel = "normal"
	RiskUrgent    RiskLevel = "urgent"
	RiskEmergency RiskLevel = "emergency"
)

// rank orders risk levels for monotonic escalation.
func (r RiskLevel) rank() int {
	switch r {
	case RiskUrgent:
		return 1
	case RiskEmergency:
		return 2
	}
	return 0
}

// AtLeast reports whether r is at or above other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.rank() >= other.rank()
}

// Max returns the higher of the two risk levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

// Gender as reported by the patient.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
	GenderUnknown Gender = "unknown"
)

// PatientInfo holds demographic fields, each independently unknown until
// the patient supplies it.
type PatientInfo struct {
	Name   *string `json:"name,omitempty"`
	Age    *int    `json:"age,omitempty"`
	Gender Gender  `json:"gender"`
}

// BookingStatus tracks the external confirmation state of a booking request.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
)

// BookingRequest is filled incrementally while the session is in the
// booking phases. Status moves pending -> confirmed only on an explicit
// external confirmation event.
type BookingRequest struct {
	HospitalID    *string       `json:"hospital_id,omitempty"`
	DepartmentID  *string       `json:"department_id,omitempty"`
	DoctorID      *string       `json:"doctor_id,omitempty"`
	PreferredTime *string       `json:"preferred_time,omitempty"`
	Status        BookingStatus `json:"status"`
}

// Wire names for booking fields, in the fixed priority order used when
// reporting what is still missing.
const (
	FieldHospitalID    = "hospitalId"
	FieldDepartmentID  = "departmentId"
	FieldDoctorID      = "doctorId"
	FieldPreferredTime = "preferredTime"
)

// ConversationRecord is the persisted state of one triage session.
type ConversationRecord struct {
	SessionID string  `json:"session_id"`
	UserID    *string `json:"user_id,omitempty"`

	Summary string `json:"summary,omitempty"`
	Phase   Phase  `json:"phase"`

	PatientInfo PatientInfo `json:"patient_info"`
	Symptoms    []string    `json:"symptoms"`
	Duration    *string     `json:"duration,omitempty"`
	RiskFactors []string    `json:"risk_factors"`

	Department   *string   `json:"department,omitempty"`
	TriageLocked bool      `json:"triage_locked"`
	TriageReason string    `json:"triage_reason,omitempty"`
	RiskLevel    RiskLevel `json:"risk_level"`

	BookingIntent  bool           `json:"booking_intent"`
	BookingRequest BookingRequest `json:"booking_request"`

	// Exchanges counts patient messages observed while collecting
	// symptoms; the machine triages after three even without a duration.
	Exchanges int `json:"exchanges"`

	// Version guards optimistic store updates.
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// NewConversationRecord creates a fresh record for a session's first message.
func NewConversationRecord(sessionID string, userID *string, now time.Time) *ConversationRecord {
	return &ConversationRecord{
		SessionID:   sessionID,
		UserID:      userID,
		Phase:       PhaseGreeting,
		PatientInfo: PatientInfo{Gender: GenderUnknown},
		RiskLevel:   RiskNormal,
		BookingRequest: BookingRequest{
			Status: BookingPending,
		},
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// Clone returns a deep copy. The engine mutates only copies so that a
// failed or cancelled advance leaves the loaded record untouched.
func (r *ConversationRecord) Clone() *ConversationRecord {
	c := *r
	c.UserID = clonePtr(r.UserID)
	c.PatientInfo.Name = clonePtr(r.PatientInfo.Name)
	c.PatientInfo.Age = clonePtr(r.PatientInfo.Age)
	c.Duration = clonePtr(r.Duration)
	c.Department = clonePtr(r.Department)
	c.Symptoms = append([]string(nil), r.Symptoms...)
	c.RiskFactors = append([]string(nil), r.RiskFactors...)
	c.BookingRequest.HospitalID = clonePtr(r.BookingRequest.HospitalID)
	c.BookingRequest.DepartmentID = clonePtr(r.BookingRequest.DepartmentID)
	c.BookingRequest.DoctorID = clonePtr(r.BookingRequest.DoctorID)
	c.BookingRequest.PreferredTime = clonePtr(r.BookingRequest.PreferredTime)
	return &c
}

// AddSymptoms unions tokens into the symptom set, preserving first-seen
// order and dropping duplicates.
func (r *ConversationRecord) AddSymptoms(tokens ...string) {
	r.Symptoms = unionTokens(r.Symptoms, tokens)
}

// AddRiskFactors unions tokens into the risk-factor set.
func (r *ConversationRecord) AddRiskFactors(tokens ...string) {
	r.RiskFactors = unionTokens(r.RiskFactors, tokens)
}

func unionTokens(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		seen[t] = struct{}{}
	}
	for _, t := range incoming {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		existing = append(existing, t)
	}
	return existing
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
