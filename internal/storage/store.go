// Package storage abstracts where attachment bytes land: S3-compatible
// object storage in production, a local directory in development and tests.
package storage

import (
	"context"
	"io"
)

// ObjectStore persists attachment bytes under a key.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}
