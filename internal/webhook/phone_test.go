package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhoneCandidates_variantsCoverStoredForm(t *testing.T) {
	// A profile stored as "+15551234567" must be found from any common
	// formatting of the same number.
	stored := "+15551234567"
	for _, raw := range []string{
		"5551234567",
		"+15551234567",
		"(555) 123-4567",
		"15551234567",
	} {
		assert.Contains(t, PhoneCandidates(raw), stored, "raw=%q", raw)
	}
}

func TestPhoneCandidates_includesRawForm(t *testing.T) {
	candidates := PhoneCandidates("(555) 123-4567")
	assert.Contains(t, candidates, "(555) 123-4567")
	assert.Contains(t, candidates, "5551234567")
}

func TestPhoneCandidates_deduplicates(t *testing.T) {
	candidates := PhoneCandidates("5551234567")
	seen := make(map[string]bool)
	for _, c := range candidates {
		assert.False(t, seen[c], "duplicate candidate %q", c)
		seen[c] = true
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"5551234567":      "+15551234567",
		"+15551234567":    "+15551234567",
		"(555) 123-4567":  "+15551234567",
		"15551234567":     "+15551234567",
		"+442071838750":   "+442071838750",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizePhone(raw), "raw=%q", raw)
	}
}
