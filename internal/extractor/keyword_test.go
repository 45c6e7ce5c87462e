package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediflow/triage-engine/internal/triage"
)

func TestKeywordExtract(t *testing.T) {
	ctx := context.Background()
	e := NewKeywordExtractor(triage.DefaultRules())

	t.Run("symptoms from rule vocabulary", func(t *testing.T) {
		update, err := e.Extract(ctx, "I've had a bad headache and some nausea lately", nil)
		require.NoError(t, err)
		require.NotNil(t, update)
		require.Contains(t, update.Symptoms, "headache")
		require.Contains(t, update.Symptoms, "nausea")
	})

	t.Run("duration phrase", func(t *testing.T) {
		update, err := e.Extract(ctx, "my cough has been going on for two weeks now", nil)
		require.NoError(t, err)
		require.NotNil(t, update)
		require.NotNil(t, update.Duration)
		require.Equal(t, "two weeks", *update.Duration)
	})

	t.Run("age phrase", func(t *testing.T) {
		update, err := e.Extract(ctx, "I am 34 years old and have a rash", nil)
		require.NoError(t, err)
		require.NotNil(t, update)
		require.NotNil(t, update.Age)
		require.Equal(t, 34, *update.Age)
	})

	t.Run("risk factor", func(t *testing.T) {
		update, err := e.Extract(ctx, "I have heart disease and chest pain", nil)
		require.NoError(t, err)
		require.NotNil(t, update)
		require.Contains(t, update.RiskFactors, "heart disease")
		require.Contains(t, update.Symptoms, "chest pain")
	})

	t.Run("booking intent", func(t *testing.T) {
		update, err := e.Extract(ctx, "can I book an appointment please", nil)
		require.NoError(t, err)
		require.NotNil(t, update)
		require.NotNil(t, update.BookingIntent)
		require.True(t, *update.BookingIntent)
	})

	t.Run("nothing extractable", func(t *testing.T) {
		update, err := e.Extract(ctx, "thanks, talk to you later", nil)
		require.NoError(t, err)
		require.Nil(t, update)
	})

	t.Run("case insensitive", func(t *testing.T) {
		update, err := e.Extract(ctx, "CHEST PAIN since THREE DAYS ago", nil)
		require.NoError(t, err)
		require.NotNil(t, update)
		require.Contains(t, update.Symptoms, "chest pain")
	})
}

func TestKeywordName(t *testing.T) {
	e := NewKeywordExtractor(triage.DefaultRules())
	require.Equal(t, "keyword", e.Name())
}
