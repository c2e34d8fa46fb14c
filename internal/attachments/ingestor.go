// Package attachments downloads photo attachments from the provider and
// persists them. Failures are strictly per-attachment: a failed download or
// upload is logged and skipped, never failing the message or the entry.
package attachments

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/daybook/server/internal/repo"
	"github.com/daybook/server/internal/storage"
)

const (
	fetchTimeout  = 15 * time.Second
	maxObjectSize = 25 << 20 // provider media cap is well under this
)

// Descriptor is one attachment reference from an inbound message.
type Descriptor struct {
	URL  string
	Type string
}

// Ingestor fetches and stores photo attachments for a journal entry.
type Ingestor struct {
	store      storage.ObjectStore
	repo       repo.AttachmentRepo
	httpClient *http.Client
	maxBytes   int64
	logger     *slog.Logger
}

// NewIngestor creates an attachment ingestor.
func NewIngestor(store storage.ObjectStore, attachmentRepo repo.AttachmentRepo, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		store:      store,
		repo:       attachmentRepo,
		httpClient: &http.Client{Timeout: fetchTimeout},
		maxBytes:   maxObjectSize,
		logger:     logger.With("component", "attachments"),
	}
}

// Ingest processes each image descriptor and returns how many were stored.
func (i *Ingestor) Ingest(ctx context.Context, userID, entryID uuid.UUID, descriptors []Descriptor) int {
	stored := 0
	for _, d := range descriptors {
		if !isImage(d.Type) || d.URL == "" {
			continue
		}
		if err := i.ingestOne(ctx, userID, entryID, d); err != nil {
			i.logger.Error("attachment skipped", "entry_id", entryID, "url", d.URL, "error", err)
			continue
		}
		stored++
	}
	return stored
}

func (i *Ingestor) ingestOne(ctx context.Context, userID, entryID uuid.UUID, d Descriptor) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: status %d", resp.StatusCode)
	}

	// Read one byte past the cap so an over-limit object is rejected whole
	// rather than stored truncated.
	data, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBytes+1))
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if int64(len(data)) > i.maxBytes {
		return fmt.Errorf("download: exceeds %d bytes", i.maxBytes)
	}

	filename := filenameFor(d)
	key := fmt.Sprintf("users/%s/entries/%s/%s-%s", userID, entryID, uuid.New(), filename)

	if err := i.store.Put(ctx, key, bytes.NewReader(data), d.Type); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if _, err := i.repo.Create(ctx, entryID, key, filename, int64(len(data)), d.Type); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return nil
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

// filenameFor derives an original filename from the URL path, falling back
// to "photo" plus an extension guessed from the mime type.
func filenameFor(d Descriptor) string {
	base := path.Base(strings.SplitN(d.URL, "?", 2)[0])
	if base != "" && base != "." && base != "/" {
		return base
	}
	if exts, err := mime.ExtensionsByType(d.Type); err == nil && len(exts) > 0 {
		return "photo" + exts[0]
	}
	return "photo"
}
