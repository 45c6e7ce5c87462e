package extractor

import (
	"context"
	"regexp"
	"strings"

	"github.com/mediflow/triage-engine/internal/model"
	"github.com/mediflow/triage-engine/internal/triage"
)

// KeywordExtractor is a deterministic fallback used when no LLM provider
// is configured, and in tests. It matches the triage rule vocabulary
// against the message text and picks up a handful of common patterns.
type KeywordExtractor struct {
	symptomTokens    []string
	riskFactorTokens []string
}

var (
	durationPattern = regexp.MustCompile(`(?i)\b(?:for|since|over)\s+((?:a|an|one|two|three|four|five|few|couple of|\d+)\s+(?:day|days|week|weeks|hour|hours|month|months|year|years))\b`)
	agePattern      = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:years?\s+old|y/?o)\b`)
)

var bookingIntentPhrases = []string{
	"book", "appointment", "schedule", "see a doctor", "make a visit",
}

// NewKeywordExtractor builds the fallback from a triage rule table so
// its vocabulary stays aligned with what the policy can act on.
func NewKeywordExtractor(rules triage.Rules) *KeywordExtractor {
	var symptoms []string
	seen := map[string]struct{}{}
	add := func(tokens []string) {
		for _, t := range tokens {
			t = strings.ToLower(strings.TrimSpace(t))
			if _, ok := seen[t]; ok || t == "" {
				continue
			}
			seen[t] = struct{}{}
			symptoms = append(symptoms, t)
		}
	}
	add(rules.EmergencySymptoms)
	add(rules.UrgentSymptoms)
	for _, rule := range rules.Departments {
		add(rule.Symptoms)
	}

	var riskFactors []string
	for _, t := range rules.UrgentRiskFactors {
		riskFactors = append(riskFactors, strings.ToLower(strings.TrimSpace(t)))
	}

	return &KeywordExtractor{
		symptomTokens:    symptoms,
		riskFactorTokens: riskFactors,
	}
}

// Name returns the provider name.
func (e *KeywordExtractor) Name() string {
	return string(ProviderKeyword)
}

// Extract scans the text for known tokens and patterns.
func (e *KeywordExtractor) Extract(_ context.Context, rawText string, _ *model.ConversationRecord) (*model.ExtractedUpdate, error) {
	text := strings.ToLower(rawText)
	update := &model.ExtractedUpdate{}

	for _, token := range e.symptomTokens {
		if strings.Contains(text, token) {
			update.Symptoms = append(update.Symptoms, token)
		}
	}
	for _, token := range e.riskFactorTokens {
		if strings.Contains(text, token) {
			update.RiskFactors = append(update.RiskFactors, token)
		}
	}

	if m := durationPattern.FindStringSubmatch(text); m != nil {
		d := m[1]
		update.Duration = &d
	}
	if m := agePattern.FindStringSubmatch(text); m != nil {
		if age := parseAge(m[1]); age != nil {
			update.Age = age
		}
	}

	for _, phrase := range bookingIntentPhrases {
		if strings.Contains(text, phrase) {
			intent := true
			update.BookingIntent = &intent
			break
		}
	}

	if update.Empty() {
		return nil, nil
	}
	return update, nil
}

func parseAge(s string) *int {
	age := 0
	for _, r := range s {
		age = age*10 + int(r-'0')
	}
	if age <= 0 || age > 130 {
		return nil
	}
	return &age
}
