package webhook

import "strings"

// PhoneCandidates generates the canonical lookup forms for a raw sender
// phone. Stored numbers vary in formatting ("+15551234567", "5551234567",
// "(555) 123-4567"), so the resolver matches any of: as received,
// digits-only, digits with a bare leading 1, "+<digits>", and "+1<digits>".
func PhoneCandidates(raw string) []string {
	raw = strings.TrimSpace(raw)

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(raw)
	add(d)
	add("+" + d)
	if strings.HasPrefix(d, "1") {
		trimmed := strings.TrimPrefix(d, "1")
		add(trimmed)
		add("+" + trimmed)
		add("+1" + trimmed)
	} else {
		add("1" + d)
		add("+1" + d)
	}
	return out
}

// NormalizePhone returns the stable identifier used for rate limiting:
// digits-only with a leading country code.
func NormalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return strings.TrimSpace(raw)
	}
	if !strings.HasPrefix(d, "1") && len(d) == 10 {
		d = "1" + d
	}
	return "+" + d
}
