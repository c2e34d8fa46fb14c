package model

import (
	"time"

	"github.com/google/uuid"
)

// Entry sources
const (
	SourceWeb = "web"
	SourceSMS = "sms"
)

// InboundMessage is one webhook delivery from the SMS provider. Rows are
// created once per delivery (after the dedup check) and never deleted here;
// only Processed, Error and EntryID are mutated afterwards.
type InboundMessage struct {
	ID                uuid.UUID
	ProviderMessageID string
	Phone             string
	Body              string
	Processed         bool
	Error             *string
	EntryID           *uuid.UUID
	ReceivedAt        time.Time
}

// JournalEntry is one day's journal content for a user. At most one
// SMS-sourced entry exists per (user, entry_date); same-day messages are
// appended into it. Content and Title are stored encrypted.
type JournalEntry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	EntryDate time.Time
	Source    string
	Content   string
	Title     string
	Tags      []string
	CreatedAt time.Time
}

// Attachment is a photo fetched from the provider and persisted to object
// storage. Rows are immutable once written.
type Attachment struct {
	ID          uuid.UUID
	EntryID     uuid.UUID
	StoragePath string
	Filename    string
	ByteSize    int64
	MimeType    string
	CreatedAt   time.Time
}

// UserProfile is the journaling account a sender phone resolves to.
// PhoneVerified flips false->true exactly once via the YES handshake.
type UserProfile struct {
	ID            uuid.UUID
	PhoneNumber   string
	Email         string
	PhoneVerified bool
	Timezone      string
	CreatedAt     time.Time
}

// SubscriptionState is read-only here; billing owns it.
type SubscriptionState struct {
	UserID     uuid.UUID
	Subscribed bool
	IsTrial    bool
	TrialEnd   *time.Time
}

// RateLimitRecord tracks accepted-message volume per (identifier, endpoint)
// within a sliding window. The window resets implicitly when it expires.
type RateLimitRecord struct {
	Identifier   string
	Endpoint     string
	AttemptCount int
	WindowStart  time.Time
	BlockedUntil *time.Time
}
