package triage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRules(t *testing.T) {
	t.Run("overrides merge onto defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"departments": [
				{"department": "oncology", "symptoms": ["lump", "unexplained weight loss"]}
			]
		}`), 0o600))

		rules, err := LoadRules(path)
		require.NoError(t, err)
		require.Len(t, rules.Departments, 1)
		require.Equal(t, "oncology", rules.Departments[0].Department)
		// Untouched sections keep the shipped defaults.
		require.Contains(t, rules.EmergencySymptoms, "chest pain")
		require.Equal(t, "pediatrics", rules.PediatricsDepartment)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRules(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
	})

	t.Run("no departments rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"departments": []}`), 0o600))

		_, err := LoadRules(path)
		require.Error(t, err)
	})
}
