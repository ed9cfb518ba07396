package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceFromScore(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ConfidenceFromScore(0.9))
	assert.Equal(t, ConfidenceHigh, ConfidenceFromScore(0.7))
	assert.Equal(t, ConfidenceMedium, ConfidenceFromScore(0.5))
	assert.Equal(t, ConfidenceMedium, ConfidenceFromScore(0.4))
	assert.Equal(t, ConfidenceLow, ConfidenceFromScore(0.39))
	assert.Equal(t, ConfidenceLow, ConfidenceFromScore(0))
}

func TestConfidenceValid(t *testing.T) {
	assert.True(t, ConfidenceHigh.Valid())
	assert.True(t, ConfidenceMedium.Valid())
	assert.True(t, ConfidenceLow.Valid())
	assert.False(t, Confidence("certain").Valid())
	assert.False(t, Confidence("").Valid())
}

func TestDeathFieldsIsEmpty(t *testing.T) {
	assert.True(t, DeathFields{}.IsEmpty())
	assert.True(t, DeathFields{Confidence: ConfidenceHigh}.IsEmpty(), "confidence alone is not a finding")
	assert.False(t, DeathFields{CauseOfDeath: "stroke"}.IsEmpty())
	assert.False(t, DeathFields{RelatedPeople: []string{"Merel Poloway"}}.IsEmpty())
}

func TestDeathFieldsCoalesce(t *testing.T) {
	fallback := DeathFields{
		CauseOfDeath:    "stroke",
		Location:        "Manhasset, New York",
		NotableFactors:  []string{"illness"},
		Confidence:      ConfidenceMedium,
		FieldConfidence: map[string]Confidence{"cause_of_death": ConfidenceMedium},
	}
	update := DeathFields{
		CauseOfDeath:    "complications from a stroke",
		CauseDetails:    "suffered a stroke days earlier",
		Confidence:      ConfidenceHigh,
		FieldConfidence: map[string]Confidence{"cause_details": ConfidenceHigh},
	}

	got := update.Coalesce(fallback)
	assert.Equal(t, "complications from a stroke", got.CauseOfDeath, "update wins when populated")
	assert.Equal(t, "suffered a stroke days earlier", got.CauseDetails)
	assert.Equal(t, "Manhasset, New York", got.Location, "empty update never blanks fallback")
	assert.Equal(t, []string{"illness"}, got.NotableFactors)
	assert.Equal(t, ConfidenceHigh, got.Confidence)
	assert.Equal(t, map[string]Confidence{
		"cause_of_death": ConfidenceMedium,
		"cause_details":  ConfidenceHigh,
	}, got.FieldConfidence)
}

func TestDeathFieldsCoalesce_StickyDetailFlag(t *testing.T) {
	got := DeathFields{}.Coalesce(DeathFields{HasDetailedInfo: true})
	assert.True(t, got.HasDetailedInfo)

	got = DeathFields{HasDetailedInfo: true}.Coalesce(DeathFields{})
	assert.True(t, got.HasDetailedInfo)
}
