package cryptoutil

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the secretbox key length in bytes.
const KeySize = 32

const nonceSize = 24

var (
	// ErrInvalidKey is returned for keys that are neither 32 raw bytes nor
	// 64 hex characters.
	ErrInvalidKey = errors.New("invalid encryption key")
	// ErrDecrypt is returned when a token cannot be decoded or authenticated.
	ErrDecrypt = errors.New("decryption failed")
)

// ResolveKey interprets key as 32 raw bytes or 64 hex characters (decoded
// to 32 bytes).
func ResolveKey(key string) (*[KeySize]byte, error) {
	var out [KeySize]byte
	if len(key) == 2*KeySize && IsHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) != KeySize {
			return nil, fmt.Errorf("encryption key hex must decode to %d bytes: %w", KeySize, ErrInvalidKey)
		}
		copy(out[:], decoded)
		return &out, nil
	}
	if len(key) == KeySize {
		copy(out[:], key)
		return &out, nil
	}
	return nil, fmt.Errorf("encryption key must be %d bytes or %d hex characters (got %d): %w", KeySize, 2*KeySize, len(key), ErrInvalidKey)
}

// Seal encrypts plaintext with a fresh random nonce and returns
// base64url(nonce || box) without padding, safe to embed in text.
func Seal(key *[KeySize]byte, plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

// Open reverses Seal.
func Open(key *[KeySize]byte, token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decoding token: %w", ErrDecrypt)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("token too short: %w", ErrDecrypt)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, key)
	if !ok {
		return "", fmt.Errorf("authenticating token: %w", ErrDecrypt)
	}
	return string(plain), nil
}
