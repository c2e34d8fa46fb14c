package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func signBody(t *testing.T, secret string, ts int64, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func fixedValidator(secret string, now time.Time) *SignatureValidator {
	v := NewSignatureValidator(secret)
	v.now = func() time.Time { return now }
	return v
}

func TestSignatureValidator_valid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := fixedValidator("whsec_test", now)
	body := []byte(`{"event":"message.received"}`)

	sig := signBody(t, "whsec_test", now.Unix(), body)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), sig)

	assert.True(t, v.Valid(body, header))
}

func TestSignatureValidator_multipleV1AnyMatch(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := fixedValidator("whsec_test", now)
	body := []byte(`{}`)

	good := signBody(t, "whsec_test", now.Unix(), body)
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), "deadbeef", good)

	assert.True(t, v.Valid(body, header))
}

func TestSignatureValidator_rejects(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{}`)
	good := signBody(t, "whsec_test", now.Unix(), body)

	cases := []struct {
		name   string
		secret string
		header string
	}{
		{"missing header", "whsec_test", ""},
		{"missing secret", "", fmt.Sprintf("t=%d,v1=%s", now.Unix(), good)},
		{"no timestamp", "whsec_test", "v1=" + good},
		{"no v1", "whsec_test", fmt.Sprintf("t=%d", now.Unix())},
		{"garbage", "whsec_test", "t=abc,v1=zzz"},
		{"wrong hash", "whsec_test", fmt.Sprintf("t=%d,v1=%s", now.Unix(), "deadbeef")},
		{"wrong secret", "whsec_other", fmt.Sprintf("t=%d,v1=%s", now.Unix(), good)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := fixedValidator(tc.secret, now)
			assert.False(t, v.Valid(body, tc.header))
		})
	}
}

func TestSignatureValidator_replayWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := fixedValidator("whsec_test", now)
	body := []byte(`{}`)

	// 901 seconds old: outside the window even with a valid hash.
	stale := now.Add(-901 * time.Second).Unix()
	header := fmt.Sprintf("t=%d,v1=%s", stale, signBody(t, "whsec_test", stale, body))
	assert.False(t, v.Valid(body, header))

	// 899 seconds old: still accepted.
	fresh := now.Add(-899 * time.Second).Unix()
	header = fmt.Sprintf("t=%d,v1=%s", fresh, signBody(t, "whsec_test", fresh, body))
	assert.True(t, v.Valid(body, header))

	// Timestamps from the future are bounded the same way.
	future := now.Add(901 * time.Second).Unix()
	header = fmt.Sprintf("t=%d,v1=%s", future, signBody(t, "whsec_test", future, body))
	assert.False(t, v.Valid(body, header))
}
