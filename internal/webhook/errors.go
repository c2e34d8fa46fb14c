package webhook

import "fmt"

// Pipeline error taxonomy. Each type maps to one HTTP status in the handler;
// transient failures (attachments, outbound sends) are logged inside the
// pipeline and never surface here.

// ValidationError rejects a malformed or oversized payload (400).
type ValidationError struct {
	Reason string
	// Oversized marks bodies over the cap, which are persisted truncated
	// before rejection.
	Oversized bool
}

func (e *ValidationError) Error() string { return e.Reason }

// NotFoundError means the sender phone resolved to no account (404).
type NotFoundError struct {
	Phone string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no account for phone %s", maskPhone(e.Phone))
}

// StateError rejects a message from an account not yet eligible to journal:
// unverified phone or inactive subscription (403).
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return e.Reason }

// RateLimitError throttles a sender over the per-phone window limit (429).
type RateLimitError struct {
	Identifier string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s", maskPhone(e.Identifier))
}

// maskPhone keeps only the last 4 digits for logs and error text.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
