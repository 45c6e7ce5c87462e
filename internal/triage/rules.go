package triage

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadRules reads a rule table from a JSON file. Fields left out of the
// file fall back to the shipped defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("triage: read rules file: %w", err)
	}
	if err := json.Unmarshal(raw, &rules); err != nil {
		return Rules{}, fmt.Errorf("triage: parse rules file: %w", err)
	}
	if len(rules.Departments) == 0 {
		return Rules{}, fmt.Errorf("triage: rules file %s defines no departments", path)
	}
	return rules, nil
}

// DefaultRules is the rule table shipped with the engine. Deployments are
// expected to override it via configuration; the defaults exist so the
// service boots with sensible behavior in development.
func DefaultRules() Rules {
	return Rules{
		EmergencySymptoms: []string{
			"chest pain",
			"difficulty breathing",
			"severe bleeding",
			"loss of consciousness",
			"seizure",
			"stroke symptoms",
		},
		UrgentSymptoms: []string{
			"high fever",
			"severe pain",
			"persistent vomiting",
			"severe headache",
			"dehydration",
		},
		UrgentRiskFactors: []string{
			"pregnancy",
			"heart disease",
			"immunocompromised",
		},
		Departments: []DepartmentRule{
			{Department: "cardiology", Symptoms: []string{"chest pain", "palpitations", "shortness of breath", "irregular heartbeat"}},
			{Department: "neurology", Symptoms: []string{"headache", "severe headache", "dizziness", "numbness", "seizure", "stroke symptoms"}},
			{Department: "gastroenterology", Symptoms: []string{"abdominal pain", "nausea", "vomiting", "persistent vomiting", "diarrhea", "constipation"}},
			{Department: "pulmonology", Symptoms: []string{"cough", "difficulty breathing", "wheezing", "chest tightness"}},
			{Department: "orthopedics", Symptoms: []string{"joint pain", "back pain", "swelling", "fracture", "sprain"}},
			{Department: "dermatology", Symptoms: []string{"rash", "itching", "skin lesion", "hives"}},
			{Department: "general medicine", Symptoms: []string{"fever", "high fever", "fatigue", "sore throat", "chills", "body ache"}},
		},
		PediatricsDepartment: "pediatrics",
		PediatricsMaxAge:     14,
	}
}
