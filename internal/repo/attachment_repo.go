package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/daybook/server/internal/model"
)

// AttachmentRepo defines the interface for attachment row persistence
type AttachmentRepo interface {
	Create(ctx context.Context, entryID uuid.UUID, storagePath, filename string, byteSize int64, mimeType string) (model.Attachment, error)
	ListByEntry(ctx context.Context, entryID uuid.UUID) ([]model.Attachment, error)
}

type attachmentRepo struct {
	db *sql.DB
}

// NewAttachmentRepo creates a new AttachmentRepo instance
func NewAttachmentRepo(db *sql.DB) AttachmentRepo {
	return &attachmentRepo{db: db}
}

// Create inserts a new attachment row.
func (r *attachmentRepo) Create(ctx context.Context, entryID uuid.UUID, storagePath, filename string, byteSize int64, mimeType string) (model.Attachment, error) {
	query := `
		INSERT INTO attachments (entry_id, storage_path, filename, byte_size, mime_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, entry_id, storage_path, filename, byte_size, mime_type, created_at
	`
	var a model.Attachment
	var idStr, entryIDStr string
	err := r.db.QueryRowContext(ctx, query, entryID.String(), storagePath, filename, byteSize, mimeType).
		Scan(&idStr, &entryIDStr, &a.StoragePath, &a.Filename, &a.ByteSize, &a.MimeType, &a.CreatedAt)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to insert attachment: %w", err)
	}
	if a.ID, err = uuid.Parse(idStr); err != nil {
		return model.Attachment{}, fmt.Errorf("failed to parse attachment ID: %w", err)
	}
	if a.EntryID, err = uuid.Parse(entryIDStr); err != nil {
		return model.Attachment{}, fmt.Errorf("failed to parse entry ID: %w", err)
	}
	return a, nil
}

// ListByEntry returns all attachments recorded for an entry.
func (r *attachmentRepo) ListByEntry(ctx context.Context, entryID uuid.UUID) ([]model.Attachment, error) {
	query := `
		SELECT id, entry_id, storage_path, filename, byte_size, mime_type, created_at
		FROM attachments
		WHERE entry_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, entryID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	var out []model.Attachment
	for rows.Next() {
		var a model.Attachment
		var idStr, entryIDStr string
		if err := rows.Scan(&idStr, &entryIDStr, &a.StoragePath, &a.Filename, &a.ByteSize, &a.MimeType, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		if a.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse attachment ID: %w", err)
		}
		if a.EntryID, err = uuid.Parse(entryIDStr); err != nil {
			return nil, fmt.Errorf("failed to parse entry ID: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}
	return out, nil
}
