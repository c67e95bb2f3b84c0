// Package cryptoutil seals values written to durable storage (the credential mirror).
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sealer protects a value at rest and recovers it.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

const (
	// Versioned prefix to allow key/algorithm rotation without a migration.
	sealedPrefixV1 = "v1:"
	plainPrefix    = "plain:"
)

// AESGCMSealer implements Sealer using AES-256-GCM.
type AESGCMSealer struct {
	aead cipher.AEAD
}

// NewAESGCMSealer constructs a sealer. Key must be 32 bytes (AES-256).
func NewAESGCMSealer(key []byte) (*AESGCMSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &AESGCMSealer{aead: aead}, nil
}

// SealerFromKey derives a sealer from configuration text. A 64-char hex string is used as-is;
// any other non-empty value is hashed to 32 bytes. An empty key yields PlainSealer.
//
//nolint:ireturn // callers only need the Sealer behavior.
func SealerFromKey(key string) (Sealer, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return PlainSealer{}, nil
	}
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		return NewAESGCMSealer(decoded)
	}
	sum := sha256.Sum256([]byte(key))
	return NewAESGCMSealer(sum[:])
}

// Seal encrypts plaintext with a random nonce and returns a versioned base64 string.
func (s *AESGCMSealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	// nonce||ciphertext
	buf := s.aead.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefixV1 + base64.StdEncoding.EncodeToString(buf), nil
}

// Open decrypts a value produced by Seal. Values written by PlainSealer are accepted so a key
// can be introduced without discarding an existing mirror.
func (s *AESGCMSealer) Open(sealed string) ([]byte, error) {
	if strings.HasPrefix(sealed, plainPrefix) {
		return PlainSealer{}.Open(sealed)
	}
	if !strings.HasPrefix(sealed, sealedPrefixV1) {
		return nil, fmt.Errorf("unknown sealed value version (prefix: %s)", prefixOf(sealed))
	}
	data, err := base64.StdEncoding.DecodeString(sealed[len(sealedPrefixV1):])
	if err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, errors.New("sealed value too short")
	}
	pt, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed value: %w", err)
	}
	return pt, nil
}

// PlainSealer stores values base64-encoded with a marker prefix. Used when no key is configured.
type PlainSealer struct{}

func (PlainSealer) Seal(plaintext []byte) (string, error) {
	return plainPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (PlainSealer) Open(sealed string) ([]byte, error) {
	if !strings.HasPrefix(sealed, plainPrefix) {
		return nil, errors.New("invalid plain sealed value")
	}
	return base64.StdEncoding.DecodeString(sealed[len(plainPrefix):])
}

func prefixOf(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
