package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_roundTrip(t *testing.T) {
	c := NewCodec()
	cases := []string{
		"hello world",
		"",
		"multi\nline\n\ncontent",
		"unicode: päivä 日記 🙂",
		strings.Repeat("long ", 2000),
	}
	for _, plaintext := range cases {
		stored, err := c.Encrypt(plaintext, "user-123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stored, "ENC:"))

		got, err := c.Decrypt(stored, "user-123")
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncrypt_saltAndNonceAreFresh(t *testing.T) {
	c := NewCodec()
	a, err := c.Encrypt("same input", "u")
	require.NoError(t, err)
	b, err := c.Encrypt("same input", "u")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "two encryptions of the same value must differ")
}

func TestDecrypt_legacyPlaintextPassesThrough(t *testing.T) {
	c := NewCodec()
	got, err := c.Decrypt("an old unencrypted entry", "user-123")
	require.NoError(t, err)
	assert.Equal(t, "an old unencrypted entry", got)
}

func TestDecrypt_wrongUserFails(t *testing.T) {
	c := NewCodec()
	stored, err := c.Encrypt("secret", "user-a")
	require.NoError(t, err)

	_, err = c.Decrypt(stored, "user-b")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecrypt_corruptBlobFails(t *testing.T) {
	c := NewCodec()

	_, err := c.Decrypt("ENC:not-base64!!!", "u")
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = c.Decrypt("ENC:AAAA", "u")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecode_variants(t *testing.T) {
	v, err := Decode("plain text")
	require.NoError(t, err)
	assert.False(t, v.IsEncrypted)
	assert.Equal(t, "plain text", v.Plaintext)

	c := NewCodec()
	stored, err := c.Encrypt("x", "u")
	require.NoError(t, err)
	v, err = Decode(stored)
	require.NoError(t, err)
	assert.True(t, v.IsEncrypted)
	assert.Len(t, v.Salt, 16)
	assert.Len(t, v.Nonce, 12)
	assert.NotEmpty(t, v.Ciphertext)
}
