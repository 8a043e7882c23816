package store

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go-groupchat/internal/models"
)

// Encrypted seals message content with AES-256-GCM before it reaches the
// wrapped store. Messages handed back to callers carry plaintext content.
type Encrypted struct {
	inner MessageStore
	aead  cipher.AEAD
}

// NewEncrypted wraps inner using a 32-byte key given as 64 hex characters.
func NewEncrypted(inner MessageStore, hexKey string) (*Encrypted, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode message key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("message key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Encrypted{inner: inner, aead: aead}, nil
}

func (e *Encrypted) SaveMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	sealed, err := e.seal(msg.Content)
	if err != nil {
		return models.Message{}, err
	}
	msg.Content = sealed

	stored, err := e.inner.SaveMessage(ctx, msg)
	if err != nil {
		return models.Message{}, err
	}
	plain, err := e.Open(stored.Content)
	if err != nil {
		return models.Message{}, err
	}
	stored.Content = plain
	return stored, nil
}

func (e *Encrypted) MarkRead(ctx context.Context, groupID, messageID, userID string, at time.Time) error {
	return e.inner.MarkRead(ctx, groupID, messageID, userID, at)
}

func (e *Encrypted) seal(plain string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts content produced by this store.
func (e *Encrypted) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode content: %w", err)
	}
	n := e.aead.NonceSize()
	if len(raw) < n {
		return "", errors.New("sealed content too short")
	}
	plain, err := e.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt content: %w", err)
	}
	return string(plain), nil
}
