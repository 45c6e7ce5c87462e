package model

// ExtractedUpdate is a sparse partial update proposed by the fact
// extractor for a single inbound message. Nil fields mean "no new
// information"; set-valued fields are unioned into the record, never
// substituted.
type ExtractedUpdate struct {
	Name   *string `json:"name,omitempty"`
	Age    *int    `json:"age,omitempty"`
	Gender *Gender `json:"gender,omitempty"`

	Symptoms    []string `json:"symptoms,omitempty"`
	Duration    *string  `json:"duration,omitempty"`
	RiskFactors []string `json:"risk_factors,omitempty"`

	BookingIntent *bool          `json:"booking_intent,omitempty"`
	Booking       *BookingUpdate `json:"booking,omitempty"`

	Summary *string `json:"summary,omitempty"`
}

// BookingUpdate carries booking fields extracted from a message. It is
// merged key by key into the record's booking request; the extractor can
// never touch the booking status.
type BookingUpdate struct {
	HospitalID    *string `json:"hospital_id,omitempty"`
	DepartmentID  *string `json:"department_id,omitempty"`
	DoctorID      *string `json:"doctor_id,omitempty"`
	PreferredTime *string `json:"preferred_time,omitempty"`
}

// Empty reports whether the update carries no information at all.
func (u *ExtractedUpdate) Empty() bool {
	if u == nil {
		return true
	}
	return u.Name == nil && u.Age == nil && u.Gender == nil &&
		len(u.Symptoms) == 0 && u.Duration == nil && len(u.RiskFactors) == 0 &&
		u.BookingIntent == nil && u.Booking == nil && u.Summary == nil
}
