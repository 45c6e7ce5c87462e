package triage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediflow/triage-engine/internal/model"
)

func intptr(i int) *int { return &i }

func TestAssessRisk(t *testing.T) {
	p := NewPolicy(DefaultRules())

	tests := []struct {
		name        string
		symptoms    []string
		riskFactors []string
		want        model.RiskLevel
	}{
		{
			name:     "no indicators",
			symptoms: []string{"fatigue", "sore throat"},
			want:     model.RiskNormal,
		},
		{
			name:     "urgent symptom",
			symptoms: []string{"high fever"},
			want:     model.RiskUrgent,
		},
		{
			name:        "urgent risk factor",
			symptoms:    []string{"cough"},
			riskFactors: []string{"pregnancy"},
			want:        model.RiskUrgent,
		},
		{
			name:     "emergency beats everything",
			symptoms: []string{"fatigue", "chest pain", "high fever"},
			want:     model.RiskEmergency,
		},
		{
			name:     "case insensitive matching",
			symptoms: []string{"  Chest Pain "},
			want:     model.RiskEmergency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := p.Assess(tt.symptoms, tt.riskFactors, model.PatientInfo{})
			require.Equal(t, tt.want, a.RiskLevel)
			require.NotEmpty(t, a.Reason)
		})
	}
}

func TestAssessDepartment(t *testing.T) {
	p := NewPolicy(DefaultRules())

	t.Run("most matches wins", func(t *testing.T) {
		a := p.Assess([]string{"cough", "wheezing", "headache"}, nil, model.PatientInfo{})
		require.Equal(t, "pulmonology", a.Department)
		require.InDelta(t, 2.0/3.0, a.Confidence, 1e-9)
	})

	t.Run("table order breaks ties", func(t *testing.T) {
		// One cardiology match, one neurology match; cardiology is first.
		a := p.Assess([]string{"palpitations", "dizziness"}, nil, model.PatientInfo{})
		require.Equal(t, "cardiology", a.Department)
	})

	t.Run("no match means no department", func(t *testing.T) {
		a := p.Assess([]string{"strange tingling sensation"}, nil, model.PatientInfo{})
		require.Empty(t, a.Department)
		require.Zero(t, a.Confidence)
	})

	t.Run("empty symptoms", func(t *testing.T) {
		a := p.Assess(nil, nil, model.PatientInfo{})
		require.Empty(t, a.Department)
		require.Zero(t, a.Confidence)
		require.Equal(t, model.RiskNormal, a.RiskLevel)
	})
}

func TestAssessDeterministic(t *testing.T) {
	p := NewPolicy(DefaultRules())
	symptoms := []string{"headache", "nausea", "dizziness"}

	first := p.Assess(symptoms, nil, model.PatientInfo{})
	for i := 0; i < 10; i++ {
		require.Equal(t, first, p.Assess(symptoms, nil, model.PatientInfo{}))
	}
}

func TestPediatricsOverride(t *testing.T) {
	p := NewPolicy(DefaultRules())

	t.Run("child routed to pediatrics", func(t *testing.T) {
		a := p.Assess([]string{"cough"}, nil, model.PatientInfo{Age: intptr(6)})
		require.Equal(t, "pediatrics", a.Department)
	})

	t.Run("adult keeps the matched department", func(t *testing.T) {
		a := p.Assess([]string{"cough"}, nil, model.PatientInfo{Age: intptr(40)})
		require.Equal(t, "pulmonology", a.Department)
	})

	t.Run("unknown age keeps the matched department", func(t *testing.T) {
		a := p.Assess([]string{"cough"}, nil, model.PatientInfo{})
		require.Equal(t, "pulmonology", a.Department)
	})

	t.Run("no department match stays empty for children", func(t *testing.T) {
		a := p.Assess([]string{"strange tingling sensation"}, nil, model.PatientInfo{Age: intptr(6)})
		require.Empty(t, a.Department)
	})
}
