package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// replayWindow is the tolerance on signature timestamps; outside it the
// request is rejected regardless of hash validity.
const replayWindow = 900 * time.Second

// SignatureValidator authenticates provider callbacks from the
// Surge-Signature header: "t=<unix-seconds>,v1=<hex>[,v1=<hex>...]".
type SignatureValidator struct {
	secret []byte
	now    func() time.Time
}

// NewSignatureValidator creates a validator for the shared webhook secret.
func NewSignatureValidator(secret string) *SignatureValidator {
	return &SignatureValidator{secret: []byte(secret), now: time.Now}
}

// Valid reports whether header authenticates body. It fails closed: missing
// secret, missing or malformed header, stale timestamp, or no matching v1
// hash all reject.
func (v *SignatureValidator) Valid(body []byte, header string) bool {
	if len(v.secret) == 0 || header == "" {
		return false
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age > replayWindow || age < -replayWindow {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if constantTimeEqual(expected, candidate) {
			return true
		}
	}
	return false
}

// constantTimeEqual compares hex digests without leaking a timing side
// channel. Length mismatch is not secret; the digest length is public.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
