package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/daybook/server/internal/attachments"
	"github.com/daybook/server/internal/model"
	"github.com/daybook/server/internal/repo"
)

// Per-phone business limit, scoped to this endpoint. The 11th accepted-shape
// message inside the window is rejected.
const (
	rateLimitEndpoint = "webhook"
	rateLimitWindow   = 15 * time.Minute
	rateLimitMax      = 10
)

const outboundSendTimeout = 30 * time.Second

// Result statuses
const (
	StatusProcessed = "processed"
	StatusDuplicate = "duplicate"
	StatusIgnored   = "ignored"
	StatusVerified  = "verified"
)

// Result is the outcome of processing one webhook delivery.
type Result struct {
	Status  string
	EntryID *uuid.UUID
}

// Aggregator merges a gated message into the user's entry for today.
type Aggregator interface {
	Append(ctx context.Context, user model.UserProfile, body string) (model.JournalEntry, bool, error)
}

// Ingestor stores photo attachments for an entry, returning how many stuck.
type Ingestor interface {
	Ingest(ctx context.Context, userID, entryID uuid.UUID, descriptors []attachments.Descriptor) int
}

// Sender delivers an outbound message, best-effort.
type Sender interface {
	Send(ctx context.Context, toPhone, body string) error
}

// CheckoutLinker mints a checkout URL for billing-reminder messages.
type CheckoutLinker interface {
	GenerateLink(userID uuid.UUID, email string) (string, error)
}

// Templates selects outbound message bodies.
type Templates struct {
	Instruction     func() string
	Confirmation    func() string
	BillingReminder func(checkoutURL string) string
}

// Service runs the inbound pipeline: normalize, dedup, rate limit, resolve,
// verification handshake, subscription gate, aggregate, attachments,
// confirmation.
type Service struct {
	messages      repo.MessageRepo
	users         repo.UserRepo
	subscriptions repo.SubscriptionRepo
	rateLimits    repo.RateLimitRepo
	aggregator    Aggregator
	ingestor      Ingestor
	sender        Sender
	checkout      CheckoutLinker
	templates     Templates
	logger        *slog.Logger
	now           func() time.Time
}

// NewService wires the pipeline.
func NewService(
	messages repo.MessageRepo,
	users repo.UserRepo,
	subscriptions repo.SubscriptionRepo,
	rateLimits repo.RateLimitRepo,
	aggregator Aggregator,
	ingestor Ingestor,
	sender Sender,
	checkout CheckoutLinker,
	templates Templates,
	logger *slog.Logger,
) *Service {
	return &Service{
		messages:      messages,
		users:         users,
		subscriptions: subscriptions,
		rateLimits:    rateLimits,
		aggregator:    aggregator,
		ingestor:      ingestor,
		sender:        sender,
		checkout:      checkout,
		templates:     templates,
		logger:        logger.With("component", "webhook"),
		now:           time.Now,
	}
}

// Process handles one authenticated webhook body. The caller has already
// verified the signature; nothing here runs without that.
func (s *Service) Process(ctx context.Context, raw []byte) (Result, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) && verr.Oversized {
			s.persistOversized(ctx, normalized.Message, verr.Reason)
		}
		return Result{}, err
	}
	if normalized.Ignore {
		return Result{Status: StatusIgnored}, nil
	}
	msg := normalized.Message

	// Dedup: a provider message id we have seen is acknowledged again with
	// no new writes.
	if existing, err := s.messages.GetByProviderID(ctx, msg.MessageID); err == nil {
		return Result{Status: StatusDuplicate, EntryID: existing.EntryID}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return Result{}, fmt.Errorf("dedup lookup: %w", err)
	}

	identifier := NormalizePhone(msg.FromPhone)
	count, err := s.rateLimits.Bump(ctx, identifier, rateLimitEndpoint, rateLimitWindow)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit: %w", err)
	}
	if count > rateLimitMax {
		reason := "rate limit exceeded"
		if _, err := s.messages.Create(ctx, msg.MessageID, msg.FromPhone, msg.Body, &reason); err != nil {
			s.logger.Error("failed to persist rate-limited message", "error", err)
		}
		return Result{}, &RateLimitError{Identifier: identifier}
	}

	stored, err := s.messages.Create(ctx, msg.MessageID, msg.FromPhone, msg.Body, nil)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// Lost a race with a concurrent delivery of the same message;
			// acknowledge it like any other duplicate.
			if existing, lookupErr := s.messages.GetByProviderID(ctx, msg.MessageID); lookupErr == nil {
				return Result{Status: StatusDuplicate, EntryID: existing.EntryID}, nil
			}
			return Result{Status: StatusDuplicate}, nil
		}
		return Result{}, fmt.Errorf("persist message: %w", err)
	}

	user, err := s.users.GetByPhoneCandidates(ctx, PhoneCandidates(msg.FromPhone))
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			s.markError(ctx, stored.ID, "unknown sender")
			return Result{}, &NotFoundError{Phone: msg.FromPhone}
		case errors.Is(err, repo.ErrAmbiguousPhone):
			s.logger.Error("phone matches multiple profiles", "phone", maskPhone(msg.FromPhone))
			s.markError(ctx, stored.ID, "ambiguous sender")
			return Result{}, &NotFoundError{Phone: msg.FromPhone}
		default:
			return Result{}, fmt.Errorf("resolve user: %w", err)
		}
	}

	if !user.PhoneVerified {
		return s.handleUnverified(ctx, stored, user, msg)
	}

	sub, err := s.subscriptions.GetByUserID(ctx, user.ID)
	if err != nil {
		return Result{}, fmt.Errorf("subscription lookup: %w", err)
	}
	if !hasAccess(sub, s.now()) {
		s.markError(ctx, stored.ID, "no active subscription")
		s.sendBillingReminder(user)
		return Result{}, &StateError{Reason: "no active subscription"}
	}

	entry, created, err := s.aggregator.Append(ctx, user, msg.Body)
	if err != nil {
		return Result{}, fmt.Errorf("aggregate entry: %w", err)
	}

	if len(msg.Attachments) > 0 {
		descriptors := make([]attachments.Descriptor, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			descriptors = append(descriptors, attachments.Descriptor{URL: a.URL, Type: a.Type})
		}
		s.ingestor.Ingest(ctx, user.ID, entry.ID, descriptors)
	}

	if err := s.messages.MarkProcessed(ctx, stored.ID, &entry.ID); err != nil {
		s.logger.Error("failed to mark message processed", "message_id", stored.ID, "error", err)
	}

	if created {
		s.sendAsync(user.PhoneNumber, s.templates.Confirmation())
	}

	entryID := entry.ID
	return Result{Status: StatusProcessed, EntryID: &entryID}, nil
}

// handleUnverified runs the opt-in handshake: "YES" (any case) verifies the
// phone and triggers the instruction reply; anything else is rejected with no
// reply and no entry.
func (s *Service) handleUnverified(ctx context.Context, stored model.InboundMessage, user model.UserProfile, msg Message) (Result, error) {
	if strings.EqualFold(strings.TrimSpace(msg.Body), "YES") {
		if err := s.users.SetPhoneVerified(ctx, user.ID); err != nil {
			return Result{}, fmt.Errorf("set phone verified: %w", err)
		}
		if err := s.messages.MarkProcessed(ctx, stored.ID, nil); err != nil {
			s.logger.Error("failed to mark handshake message processed", "message_id", stored.ID, "error", err)
		}
		s.sendAsync(user.PhoneNumber, s.templates.Instruction())
		return Result{Status: StatusVerified}, nil
	}

	s.markError(ctx, stored.ID, "phone not verified")
	return Result{}, &StateError{Reason: "phone not verified"}
}

func (s *Service) sendBillingReminder(user model.UserProfile) {
	link, err := s.checkout.GenerateLink(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate checkout link", "user_id", user.ID, "error", err)
		return
	}
	s.sendAsync(user.PhoneNumber, s.templates.BillingReminder(link))
}

// sendAsync delivers fire-and-forget: the inbound response is already
// decided, so a provider outage must not block or reverse it.
func (s *Service) sendAsync(toPhone, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), outboundSendTimeout)
		defer cancel()
		if err := s.sender.Send(ctx, toPhone, body); err != nil {
			s.logger.Error("outbound send failed", "phone", maskPhone(toPhone), "error", err)
		}
	}()
}

func (s *Service) markError(ctx context.Context, id uuid.UUID, reason string) {
	if err := s.messages.SetError(ctx, id, reason); err != nil {
		s.logger.Error("failed to set message error", "message_id", id, "error", err)
	}
}

// persistOversized stores a truncated copy of an over-cap body so operators
// can inspect what was sent. Best effort; the reject stands either way.
func (s *Service) persistOversized(ctx context.Context, msg Message, reason string) {
	if msg.MessageID == "" || msg.FromPhone == "" {
		return
	}
	body := msg.Body
	if len(body) > maxBodyLen {
		body = body[:maxBodyLen]
		// Never cut mid-rune; Postgres rejects invalid UTF-8 in text columns.
		for len(body) > 0 && !utf8.ValidString(body) {
			body = body[:len(body)-1]
		}
	}
	if _, err := s.messages.Create(ctx, msg.MessageID, msg.FromPhone, body, &reason); err != nil {
		s.logger.Error("failed to persist oversized message", "error", err)
	}
}

func hasAccess(sub model.SubscriptionState, now time.Time) bool {
	if sub.Subscribed {
		return true
	}
	return sub.IsTrial && sub.TrialEnd != nil && sub.TrialEnd.After(now)
}
