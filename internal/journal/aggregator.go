// Package journal owns journal entry content mutation: all of a user's
// same-day SMS messages merge into one encrypted entry.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/daybook/server/internal/crypto"
	"github.com/daybook/server/internal/model"
	"github.com/daybook/server/internal/repo"
)

// Aggregator creates or appends to the day's encrypted entry.
type Aggregator struct {
	entries repo.EntryRepo
	codec   *crypto.Codec
	logger  *slog.Logger
	now     func() time.Time
}

// NewAggregator creates an entry aggregator.
func NewAggregator(entries repo.EntryRepo, codec *crypto.Codec, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		entries: entries,
		codec:   codec,
		logger:  logger.With("component", "journal"),
		now:     time.Now,
	}
}

// Append merges body into the user's entry for today (in the user's
// timezone). The first message of a day creates the entry; later ones append
// "\n\n" + body to the decrypted content and re-encrypt. The read-modify-write
// runs under the repo's per-(user,day) lock.
func (a *Aggregator) Append(ctx context.Context, user model.UserProfile, body string) (model.JournalEntry, bool, error) {
	localNow := a.now().In(userLocation(user))
	day := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, time.UTC)
	userID := user.ID.String()

	mutate := func(existing *model.JournalEntry) (string, string, error) {
		if existing == nil {
			content, err := a.codec.Encrypt(body, userID)
			if err != nil {
				return "", "", fmt.Errorf("encrypt content: %w", err)
			}
			title, err := a.codec.Encrypt(entryTitle(localNow), userID)
			if err != nil {
				return "", "", fmt.Errorf("encrypt title: %w", err)
			}
			return content, title, nil
		}

		base, err := a.codec.Decrypt(existing.Content, userID)
		if errors.Is(err, crypto.ErrDecrypt) {
			// Keep the stored value rather than lose the day's content;
			// operators follow up on the log.
			a.logger.Error("entry content decrypt failed, appending to stored value",
				"entry_id", existing.ID, "error", err)
			base = existing.Content
		} else if err != nil {
			return "", "", fmt.Errorf("decrypt content: %w", err)
		}

		content, err := a.codec.Encrypt(base+"\n\n"+body, userID)
		if err != nil {
			return "", "", fmt.Errorf("encrypt content: %w", err)
		}
		return content, existing.Title, nil
	}

	return a.entries.UpsertDaily(ctx, user.ID, day, model.SourceSMS, mutate)
}

func userLocation(user model.UserProfile) *time.Location {
	if user.Timezone != "" {
		if loc, err := time.LoadLocation(user.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

func entryTitle(localNow time.Time) string {
	return "Journal Entry - " + localNow.Format("January 2, 2006")
}
