// Package crypto provides per-user at-rest encryption for journal content.
// Values written before encryption existed are stored as bare plaintext; the
// decoder keeps them readable by treating any value without the ENC: prefix
// as legacy plaintext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encPrefix = "ENC:"
	saltLen   = 16
	nonceLen  = 12
	keyLen    = 32
	kdfIters  = 100_000
)

// ErrDecrypt is returned when a tagged value cannot be decoded or fails
// authentication. Callers surface the stored value as-is instead of losing
// data (see Codec users).
var ErrDecrypt = errors.New("content decrypt failed")

// Value is the decoded form of a stored content column.
type Value struct {
	// Plaintext holds the value verbatim when it carries no encryption tag.
	Plaintext string
	// Encrypted parts, present when the value carried the ENC: tag.
	Salt, Nonce, Ciphertext []byte
	IsEncrypted             bool
}

// Decode classifies a stored value as legacy plaintext or an encrypted blob.
func Decode(stored string) (Value, error) {
	if !strings.HasPrefix(stored, encPrefix) {
		return Value{Plaintext: stored}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return Value{}, fmt.Errorf("%w: bad base64: %v", ErrDecrypt, err)
	}
	if len(raw) < saltLen+nonceLen {
		return Value{}, fmt.Errorf("%w: blob too short", ErrDecrypt)
	}
	return Value{
		Salt:        raw[:saltLen],
		Nonce:       raw[saltLen : saltLen+nonceLen],
		Ciphertext:  raw[saltLen+nonceLen:],
		IsEncrypted: true,
	}, nil
}

// Codec encrypts and decrypts content with keys derived per user.
type Codec struct{}

// NewCodec creates a content codec.
func NewCodec() *Codec {
	return &Codec{}
}

func deriveKey(userID string, salt []byte) []byte {
	return pbkdf2.Key([]byte(userID), salt, kdfIters, keyLen, sha256.New)
}

// Encrypt seals plaintext under a key derived from the user id and a fresh
// random salt, returning "ENC:" + base64(salt || nonce || ciphertext).
func (c *Codec) Encrypt(plaintext, userID string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(userID, salt))
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}

	ciphertext := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)

	blob := make([]byte, 0, saltLen+nonceLen+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)

	return encPrefix + base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. Untagged values pass through unchanged (legacy
// rows). Tagged values that fail to decode or authenticate return ErrDecrypt.
func (c *Codec) Decrypt(stored, userID string) (string, error) {
	v, err := Decode(stored)
	if err != nil {
		return "", err
	}
	if !v.IsEncrypted {
		return v.Plaintext, nil
	}

	block, err := aes.NewCipher(deriveKey(userID, v.Salt))
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}

	plaintext, err := aesgcm.Open(nil, v.Nonce, v.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}
