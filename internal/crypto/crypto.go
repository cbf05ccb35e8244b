// Package crypto seals provider credentials kept in the settings table.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	keySize           = 32
	sealedPrefix      = "v1:"
	maskVisibleSuffix = 4
	maskedPlaceholder = "••••"
)

var (
	ErrMissingKey     = errors.New("encryption key is required")
	ErrInvalidKey     = errors.New("encryption key must be 32 bytes, raw or base64 encoded")
	ErrSealedTooShort = errors.New("sealed value too short")
	ErrNotSealed      = errors.New("value is not sealed")
)

// Sealer encrypts values before they are written to shared storage.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type aesGCMSealer struct {
	aead cipher.AEAD
}

// NewSealer builds an AES-256-GCM sealer. The key may be 32 raw bytes or the
// standard base64 encoding of 32 bytes.
func NewSealer(key string) (Sealer, error) {
	keyBytes, err := decodeKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesGCMSealer{aead: aead}, nil
}

func decodeKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrMissingKey
	}
	if len(key) == keySize {
		return []byte(key), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(decoded) != keySize {
		return nil, ErrInvalidKey
	}
	return decoded, nil
}

// Seal returns a versioned, URL-safe ciphertext with a random nonce prepended.
func (s *aesGCMSealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *aesGCMSealer) Open(sealed string) (string, error) {
	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", ErrNotSealed
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize+s.aead.Overhead() {
		return "", ErrSealedTooShort
	}

	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// Mask hides all but the last few characters of a credential for display.
// Known key prefixes such as "sk_live_" are kept so staff can tell keys apart.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	prefix := ""
	for _, p := range []string{"sk_live_", "sk_test_", "rk_live_", "rk_test_"} {
		if strings.HasPrefix(secret, p) {
			prefix = p
			break
		}
	}
	rest := secret[len(prefix):]
	if len(rest) <= maskVisibleSuffix {
		return prefix + maskedPlaceholder
	}
	return prefix + maskedPlaceholder + rest[len(rest)-maskVisibleSuffix:]
}
