package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/daybook/server/internal/model"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by Create when the provider message id is already
// stored. Two concurrent deliveries of the same message can both miss the
// dedup lookup; the unique index decides the loser.
var ErrDuplicate = errors.New("duplicate provider message id")

const uniqueViolation = "23505"

// MessageRepo defines the interface for inbound message persistence
type MessageRepo interface {
	GetByProviderID(ctx context.Context, providerMessageID string) (model.InboundMessage, error)
	Create(ctx context.Context, providerMessageID, phone, body string, errMarker *string) (model.InboundMessage, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, entryID *uuid.UUID) error
	SetError(ctx context.Context, id uuid.UUID, reason string) error
}

type messageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a new MessageRepo instance
func NewMessageRepo(db *sql.DB) MessageRepo {
	return &messageRepo{db: db}
}

const messageColumns = `id, provider_message_id, phone, body, processed, error, entry_id, received_at`

func scanMessage(row *sql.Row) (model.InboundMessage, error) {
	var m model.InboundMessage
	var idStr string
	var entryID sql.NullString
	err := row.Scan(&idStr, &m.ProviderMessageID, &m.Phone, &m.Body, &m.Processed, &m.Error, &entryID, &m.ReceivedAt)
	if err != nil {
		return model.InboundMessage{}, err
	}
	m.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.InboundMessage{}, fmt.Errorf("failed to parse message ID: %w", err)
	}
	if entryID.Valid {
		eid, err := uuid.Parse(entryID.String)
		if err != nil {
			return model.InboundMessage{}, fmt.Errorf("failed to parse entry ID: %w", err)
		}
		m.EntryID = &eid
	}
	return m, nil
}

// GetByProviderID retrieves a message by the provider's message id. Used for
// dedup: a hit means this delivery was already handled.
func (r *messageRepo) GetByProviderID(ctx context.Context, providerMessageID string) (model.InboundMessage, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM inbound_messages
		WHERE provider_message_id = $1
	`
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.InboundMessage{}, ErrNotFound
		}
		return model.InboundMessage{}, fmt.Errorf("failed to query message: %w", err)
	}
	return m, nil
}

// Create inserts a new inbound message row, optionally with an error marker
// so rejected messages stay queryable for operators.
func (r *messageRepo) Create(ctx context.Context, providerMessageID, phone, body string, errMarker *string) (model.InboundMessage, error) {
	query := `
		INSERT INTO inbound_messages (provider_message_id, phone, body, error)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + messageColumns + `
	`
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, providerMessageID, phone, body, errMarker))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.InboundMessage{}, ErrDuplicate
		}
		return model.InboundMessage{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return m, nil
}

// MarkProcessed flips the processed flag and links the journal entry, if any.
func (r *messageRepo) MarkProcessed(ctx context.Context, id uuid.UUID, entryID *uuid.UUID) error {
	var eid interface{}
	if entryID != nil {
		eid = entryID.String()
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE inbound_messages SET processed = TRUE, entry_id = $2 WHERE id = $1
	`, id, eid)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetError records a diagnostic reason on an already-persisted message.
func (r *messageRepo) SetError(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE inbound_messages SET error = $2 WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("set error: %w", err)
	}
	return nil
}
