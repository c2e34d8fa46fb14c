package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/daybook/server/internal/model"
)

// EntryMutator computes the next stored content and title for a day's entry.
// existing is nil when no entry exists yet for (user, date, source). The
// returned values are stored verbatim, so callers do any encryption first.
type EntryMutator func(existing *model.JournalEntry) (content, title string, err error)

// EntryRepo defines the interface for journal entry persistence
type EntryRepo interface {
	// UpsertDaily creates or updates the (user, date, source) entry. The whole
	// read-modify-write runs in one transaction holding a per-(user,date)
	// advisory lock, so concurrent same-day messages append in arrival order
	// and never lose updates.
	UpsertDaily(ctx context.Context, userID uuid.UUID, entryDate time.Time, source string, mutate EntryMutator) (model.JournalEntry, bool, error)
	GetByUserAndDate(ctx context.Context, userID uuid.UUID, entryDate time.Time, source string) (model.JournalEntry, error)
}

type entryRepo struct {
	db *sql.DB
}

// NewEntryRepo creates a new EntryRepo instance
func NewEntryRepo(db *sql.DB) EntryRepo {
	return &entryRepo{db: db}
}

const entryColumns = `id, user_id, entry_date, source, content, title, tags, created_at`

func scanEntry(scan func(dest ...any) error) (model.JournalEntry, error) {
	var e model.JournalEntry
	var idStr, userIDStr string
	var tags pq.StringArray
	if err := scan(&idStr, &userIDStr, &e.EntryDate, &e.Source, &e.Content, &e.Title, &tags, &e.CreatedAt); err != nil {
		return model.JournalEntry{}, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.JournalEntry{}, fmt.Errorf("failed to parse entry ID: %w", err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return model.JournalEntry{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	e.ID = id
	e.UserID = userID
	e.Tags = tags
	return e, nil
}

// UpsertDaily serializes concurrent writers with pg_advisory_xact_lock; the
// lock is keyed by a hash of "userID:date" and released on COMMIT/ROLLBACK.
func (r *entryRepo) UpsertDaily(ctx context.Context, userID uuid.UUID, entryDate time.Time, source string, mutate EntryMutator) (model.JournalEntry, bool, error) {
	dateStr := entryDate.Format("2006-01-02")

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.JournalEntry{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Advisory lock: serialize appends per (user, day). Blocks until we hold
	// the lock; released on COMMIT/ROLLBACK.
	lockKey := userID.String() + ":" + dateStr
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2, hashtext($1))`, lockKey); err != nil {
		return model.JournalEntry{}, false, fmt.Errorf("advisory lock: %w", err)
	}

	query := `
		SELECT ` + entryColumns + `
		FROM journal_entries
		WHERE user_id = $1 AND entry_date = $2 AND source = $3
	`
	row := tx.QueryRowContext(ctx, query, userID.String(), dateStr, source)
	existing, err := scanEntry(row.Scan)

	switch {
	case err == nil:
		content, title, err := mutate(&existing)
		if err != nil {
			return model.JournalEntry{}, false, err
		}
		updated, err := scanEntry(tx.QueryRowContext(ctx, `
			UPDATE journal_entries SET content = $2, title = $3
			WHERE id = $1
			RETURNING `+entryColumns+`
		`, existing.ID.String(), content, title).Scan)
		if err != nil {
			return model.JournalEntry{}, false, fmt.Errorf("update entry: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return model.JournalEntry{}, false, fmt.Errorf("commit: %w", err)
		}
		return updated, false, nil

	case errors.Is(err, sql.ErrNoRows):
		content, title, err := mutate(nil)
		if err != nil {
			return model.JournalEntry{}, false, err
		}
		created, err := scanEntry(tx.QueryRowContext(ctx, `
			INSERT INTO journal_entries (user_id, entry_date, source, content, title)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+entryColumns+`
		`, userID.String(), dateStr, source, content, title).Scan)
		if err != nil {
			return model.JournalEntry{}, false, fmt.Errorf("insert entry: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return model.JournalEntry{}, false, fmt.Errorf("commit: %w", err)
		}
		return created, true, nil

	default:
		return model.JournalEntry{}, false, fmt.Errorf("query entry: %w", err)
	}
}

// GetByUserAndDate retrieves the entry for (user, date, source).
func (r *entryRepo) GetByUserAndDate(ctx context.Context, userID uuid.UUID, entryDate time.Time, source string) (model.JournalEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM journal_entries
		WHERE user_id = $1 AND entry_date = $2 AND source = $3
	`
	row := r.db.QueryRowContext(ctx, query, userID.String(), entryDate.Format("2006-01-02"), source)
	e, err := scanEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.JournalEntry{}, ErrNotFound
		}
		return model.JournalEntry{}, fmt.Errorf("failed to query entry: %w", err)
	}
	return e, nil
}
