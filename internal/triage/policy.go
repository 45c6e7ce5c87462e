// Package triage maps reported symptoms and risk factors to a department
// recommendation and a risk level. The policy is pure and rule-based so a
// deployment can swap the rule table without touching the engine.
package triage

import (
	"fmt"
	"strings"

	"github.com/mediflow/triage-engine/internal/model"
)

// Assessment is the outcome of one policy evaluation.
type Assessment struct {
	Department string
	RiskLevel  model.RiskLevel
	Reason     string
	Confidence float64
}

// DepartmentRule matches a set of symptom tokens to a department.
// Rules earlier in the table win ties.
type DepartmentRule struct {
	Department string   `json:"department"`
	Symptoms   []string `json:"symptoms"`
}

// Rules is the full policy input for one deployment.
type Rules struct {
	EmergencySymptoms []string         `json:"emergency_symptoms"`
	UrgentSymptoms    []string         `json:"urgent_symptoms"`
	UrgentRiskFactors []string         `json:"urgent_risk_factors"`
	Departments       []DepartmentRule `json:"departments"`

	// PediatricsDepartment, when non-empty, overrides the department for
	// patients below PediatricsMaxAge.
	PediatricsDepartment string `json:"pediatrics_department,omitempty"`
	PediatricsMaxAge     int    `json:"pediatrics_max_age,omitempty"`
}

// Policy evaluates Rules against a session's structured state.
type Policy struct {
	rules     Rules
	emergency map[string]struct{}
	urgent    map[string]struct{}
	urgentRF  map[string]struct{}
}

// NewPolicy builds a policy from a rule table.
func NewPolicy(rules Rules) *Policy {
	return &Policy{
		rules:     rules,
		emergency: tokenSet(rules.EmergencySymptoms),
		urgent:    tokenSet(rules.UrgentSymptoms),
		urgentRF:  tokenSet(rules.UrgentRiskFactors),
	}
}

// Assess evaluates the rule table. It is deterministic: the same inputs
// always produce the same assessment, and department ties are broken by
// table order, never randomly.
func (p *Policy) Assess(symptoms, riskFactors []string, info model.PatientInfo) Assessment {
	risk, riskReason := p.assessRisk(symptoms, riskFactors)

	dept, matched := p.bestDepartment(symptoms)

	confidence := 0.0
	if len(symptoms) > 0 {
		confidence = float64(matched) / float64(len(symptoms))
	}

	if dept != "" && p.rules.PediatricsDepartment != "" &&
		info.Age != nil && *info.Age < p.rules.PediatricsMaxAge {
		dept = p.rules.PediatricsDepartment
	}

	reason := riskReason
	if dept != "" {
		reason = fmt.Sprintf("%s; %d of %d symptoms match %s", riskReason, matched, len(symptoms), dept)
	}

	return Assessment{
		Department: dept,
		RiskLevel:  risk,
		Reason:     reason,
		Confidence: confidence,
	}
}

// assessRisk short-circuits on emergency tokens: one match forces
// emergency regardless of every other signal. No averaging.
func (p *Policy) assessRisk(symptoms, riskFactors []string) (model.RiskLevel, string) {
	for _, s := range symptoms {
		if _, ok := p.emergency[normalize(s)]; ok {
			return model.RiskEmergency, fmt.Sprintf("emergency symptom %q reported", s)
		}
	}
	for _, s := range symptoms {
		if _, ok := p.urgent[normalize(s)]; ok {
			return model.RiskUrgent, fmt.Sprintf("urgent symptom %q reported", s)
		}
	}
	for _, f := range riskFactors {
		if _, ok := p.urgentRF[normalize(f)]; ok {
			return model.RiskUrgent, fmt.Sprintf("urgent risk factor %q reported", f)
		}
	}
	return model.RiskNormal, "no urgent or emergency indicators"
}

// bestDepartment returns the department whose rule matches the most
// symptom tokens, first rule winning ties.
func (p *Policy) bestDepartment(symptoms []string) (string, int) {
	reported := tokenSet(symptoms)

	best := ""
	bestMatched := 0
	for _, rule := range p.rules.Departments {
		matched := 0
		for _, t := range rule.Symptoms {
			if _, ok := reported[normalize(t)]; ok {
				matched++
			}
		}
		if matched > bestMatched {
			best = rule.Department
			bestMatched = matched
		}
	}
	return best, bestMatched
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[normalize(t)] = struct{}{}
	}
	return set
}

func normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}
