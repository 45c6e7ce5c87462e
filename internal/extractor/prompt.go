package extractor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mediflow/triage-engine/internal/model"
)

// extractionInstructions is shared by the LLM-backed extractors. The
// model is asked for a single JSON object matching the ExtractedUpdate
// wire shape; fields it cannot determine must be omitted entirely.
const extractionInstructions = `You extract structured medical booking facts from a patient chat message.
Respond with a single JSON object and nothing else. Omit any field you cannot determine from the message.

Schema:
{
  "name": "patient name",
  "age": 42,
  "gender": "male|female|other",
  "symptoms": ["lowercase symptom tokens"],
  "duration": "how long the symptoms have lasted, verbatim",
  "risk_factors": ["lowercase risk factor tokens"],
  "booking_intent": true,
  "booking": {
    "hospital_id": "...",
    "department_id": "...",
    "doctor_id": "...",
    "preferred_time": "..."
  },
  "summary": "one-sentence digest of the conversation so far"
}

Set "booking_intent" only when the patient clearly wants to schedule an appointment.
Never invent facts that are not in the message.`

// buildStateContext renders the parts of the current record the model
// needs to avoid re-extracting known facts.
func buildStateContext(current *model.ConversationRecord) string {
	if current == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known state:\n")
	fmt.Fprintf(&b, "- phase: %s\n", current.Phase)
	if len(current.Symptoms) > 0 {
		fmt.Fprintf(&b, "- symptoms: %s\n", strings.Join(current.Symptoms, ", "))
	}
	if current.Duration != nil {
		fmt.Fprintf(&b, "- duration: %s\n", *current.Duration)
	}
	if len(current.RiskFactors) > 0 {
		fmt.Fprintf(&b, "- risk factors: %s\n", strings.Join(current.RiskFactors, ", "))
	}
	if current.BookingIntent {
		b.WriteString("- booking intent: yes\n")
	}
	return b.String()
}

// parseUpdate decodes a model response into an update, tolerating code
// fences some models wrap around JSON.
func parseUpdate(raw string) (*model.ExtractedUpdate, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if raw == "" || raw == "{}" {
		return nil, nil
	}

	var update model.ExtractedUpdate
	if err := json.Unmarshal([]byte(raw), &update); err != nil {
		return nil, fmt.Errorf("extractor: malformed response: %w", err)
	}
	sanitize(&update)
	if update.Empty() {
		return nil, nil
	}
	return &update, nil
}

// sanitize drops values the engine would reject rather than failing the
// whole extraction.
func sanitize(u *model.ExtractedUpdate) {
	if u.Gender != nil {
		switch *u.Gender {
		case model.GenderMale, model.GenderFemale, model.GenderOther:
		default:
			u.Gender = nil
		}
	}
	if u.Age != nil && (*u.Age < 0 || *u.Age > 130) {
		u.Age = nil
	}
	u.Symptoms = normalizeTokens(u.Symptoms)
	u.RiskFactors = normalizeTokens(u.RiskFactors)
}

func normalizeTokens(tokens []string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
