package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSectionTextPrefersCombined verifies the prompt text prefers the
// context-expanded form when present.
func TestSectionTextPrefersCombined(t *testing.T) {
	s := RetrievedSection{Content: "raw", CombinedContent: "expanded"}
	assert.Equal(t, "expanded", s.Text())

	s.CombinedContent = ""
	assert.Equal(t, "raw", s.Text())
}

// TestVerdictAccepted verifies only an explicit yes is affirmative.
func TestVerdictAccepted(t *testing.T) {
	assert.True(t, VerdictYes.Accepted())
	assert.False(t, VerdictNo.Accepted())
	assert.False(t, Verdict("maybe").Accepted())
}
