package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrSealedValueCorrupt is returned by Open for values that fail authentication.
var ErrSealedValueCorrupt = errors.New("auth: sealed value is corrupt or was sealed with another key")

// Sealer encrypts short secrets (Instagram access tokens) for storage with
// NaCl secretbox. A sealed value is base64(nonce || box) and carries its own
// random nonce, so sealing the same token twice yields different strings.
type Sealer struct {
	key [keySize]byte
}

// NewSealer builds a Sealer from a 64-character hex key.
// Generate one with: openssl rand -hex 32
func NewSealer(hexKey string) (*Sealer, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("auth: decoding sealing key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("auth: sealing key must be %d bytes, got %d", keySize, len(raw))
	}

	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal encrypts plaintext. An empty plaintext seals to an empty string.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("auth: reading nonce: %w", err)
	}

	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrSealedValueCorrupt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrSealedValueCorrupt
	}
	return string(plain), nil
}
