package model

// PromptKind tells the presentation layer which prompt to render next.
// The engine never produces natural-language text itself.
type PromptKind string

const (
	PromptGreeting         PromptKind = "greeting"
	PromptAskSymptoms      PromptKind = "ask_symptoms"
	PromptAskDuration      PromptKind = "ask_duration"
	PromptAskBookingIntent PromptKind = "ask_booking_intent"
	PromptAskBookingField  PromptKind = "ask_booking_field"
	PromptConfirmBooking   PromptKind = "confirm_booking"
	PromptSessionDone      PromptKind = "session_done"
	PromptRetry            PromptKind = "retry"
)

// Directive is the structured instruction returned to the presentation
// layer after each advance.
type Directive struct {
	Phase         Phase      `json:"phase"`
	PromptKind    PromptKind `json:"prompt_kind"`
	MissingFields []string   `json:"missing_fields,omitempty"`
	Department    *string    `json:"department,omitempty"`
	RiskLevel     RiskLevel  `json:"risk_level,omitempty"`
}

// RetryDirective is returned whenever an error surfaces to the caller so
// the presentation layer can ask the patient to try again without seeing
// internal error kinds.
func RetryDirective(phase Phase) Directive {
	return Directive{Phase: phase, PromptKind: PromptRetry}
}
