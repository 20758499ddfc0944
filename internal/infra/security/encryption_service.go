package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// EncryptionService seals session snapshots with AES-GCM. Each payload gets a
// fresh nonce and is bound to an associated-data label (the session id) so a
// snapshot copied under another key fails to open.
type EncryptionService struct {
	gcm cipher.AEAD
}

// NewEncryptionService accepts a 16, 24 or 32 byte key.
func NewEncryptionService(key string) (*EncryptionService, error) {
	k := []byte(key)
	if n := len(k); n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", n)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &EncryptionService{gcm: gcm}, nil
}

// Seal returns nonce || ciphertext.
func (e *EncryptionService) Seal(plaintext []byte, label string) ([]byte, error) {
	nonce := make([]byte, e.gcm.NonceSize(), e.gcm.NonceSize()+len(plaintext)+e.gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand nonce: %w", err)
	}
	return e.gcm.Seal(nonce, nonce, plaintext, []byte(label)), nil
}

// Open reverses Seal. label must match the one used to seal.
func (e *EncryptionService) Open(data []byte, label string) ([]byte, error) {
	ns := e.gcm.NonceSize()
	if len(data) < ns {
		return nil, ErrCiphertextTooShort
	}
	pt, err := e.gcm.Open(nil, data[:ns], data[ns:], []byte(label))
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", err)
	}
	return pt, nil
}
