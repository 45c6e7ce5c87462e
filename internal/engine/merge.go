package engine

import (
	"github.com/mediflow/triage-engine/internal/model"
)

// mergeUpdate folds a sparse extracted update into the record. Scalar
// fields overwrite, set fields union, booking fields merge key by key.
// The extractor cannot express locked triage fields or the booking
// status, so neither can ever be overwritten here.
//
// It returns whether the update added symptom tokens the record had not
// seen before, which drives the re-triage transition.
func mergeUpdate(rec *model.ConversationRecord, u *model.ExtractedUpdate) (newSymptoms bool) {
	if u.Empty() {
		return false
	}

	if u.Name != nil {
		name := *u.Name
		rec.PatientInfo.Name = &name
	}
	if u.Age != nil {
		age := *u.Age
		rec.PatientInfo.Age = &age
	}
	if u.Gender != nil && *u.Gender != model.GenderUnknown {
		rec.PatientInfo.Gender = *u.Gender
	}

	before := len(rec.Symptoms)
	rec.AddSymptoms(u.Symptoms...)
	newSymptoms = len(rec.Symptoms) > before

	rec.AddRiskFactors(u.RiskFactors...)

	if u.Duration != nil {
		d := *u.Duration
		rec.Duration = &d
	}
	if u.Summary != nil {
		rec.Summary = *u.Summary
	}

	// Booking intent is sticky: once the patient has signalled it, a
	// later message without the signal does not clear it.
	if u.BookingIntent != nil && *u.BookingIntent {
		rec.BookingIntent = true
	}

	if u.Booking != nil {
		mergeBooking(&rec.BookingRequest, u.Booking)
	}

	return newSymptoms
}

func mergeBooking(dst *model.BookingRequest, u *model.BookingUpdate) {
	if u.HospitalID != nil {
		v := *u.HospitalID
		dst.HospitalID = &v
	}
	if u.DepartmentID != nil {
		v := *u.DepartmentID
		dst.DepartmentID = &v
	}
	if u.DoctorID != nil {
		v := *u.DoctorID
		dst.DoctorID = &v
	}
	if u.PreferredTime != nil {
		v := *u.PreferredTime
		dst.PreferredTime = &v
	}
}
