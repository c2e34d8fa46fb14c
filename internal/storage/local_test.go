package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_putWritesUnderRoot(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)

	err = s.Put(context.Background(), "users/u1/entries/e1/a.jpg", strings.NewReader("bytes"), "image/jpeg")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "users", "u1", "entries", "e1", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(data))
}

func TestLocalStore_rejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = s.Put(context.Background(), "../outside.txt", strings.NewReader("x"), "text/plain")
	assert.Error(t, err)
}

func TestNewLocalStore_requiresRoot(t *testing.T) {
	_, err := NewLocalStore("  ")
	assert.Error(t, err)
}
