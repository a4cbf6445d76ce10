package storage

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SealedPrefix marks values written by a Sealer.
const SealedPrefix = "tmcs1:"

// MinSecretLength is the minimum accepted sealing secret length.
const MinSecretLength = 16

const sealInfo = "tokmesh-client session record v1"

// Sealing errors.
var (
	ErrSecretTooShort = errors.New("storage: sealing secret too short (minimum 16 bytes)")
	ErrNotSealed      = errors.New("storage: value is not sealed")
	ErrUnseal         = errors.New("storage: unseal failed - wrong secret or corrupted data")
)

// Sealer encrypts values before they reach a backend.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value []byte) bool {
	return bytes.HasPrefix(value, []byte(SealedPrefix))
}

// xchachaSealer uses XChaCha20-Poly1305 with a key derived by HKDF-SHA256.
// The storage key is bound as additional data, so a sealed value cannot be
// replayed under another key.
type xchachaSealer struct {
	aead interface {
		NonceSize() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	aad []byte
}

// NewSealer derives a sealing key from secret. aad is bound to every value
// (the Store passes its key).
func NewSealer(secret []byte, aad string) (Sealer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("storage: derive sealing key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("storage: init cipher: %w", err)
	}
	return &xchachaSealer{aead: aead, aad: []byte(aad)}, nil
}

// Seal returns SealedPrefix + base64(nonce || ciphertext).
func (s *xchachaSealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("storage: nonce: %w", err)
	}
	raw := s.aead.Seal(nonce, nonce, plaintext, s.aad)

	out := make([]byte, len(SealedPrefix)+base64.RawStdEncoding.EncodedLen(len(raw)))
	copy(out, SealedPrefix)
	base64.RawStdEncoding.Encode(out[len(SealedPrefix):], raw)
	return out, nil
}

// Open reverses Seal.
func (s *xchachaSealer) Open(sealed []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}
	body := sealed[len(SealedPrefix):]
	raw := make([]byte, base64.RawStdEncoding.DecodedLen(len(body)))
	n, err := base64.RawStdEncoding.Decode(raw, body)
	if err != nil {
		return nil, ErrUnseal
	}
	raw = raw[:n]

	ns := s.aead.NonceSize()
	if len(raw) < ns {
		return nil, ErrUnseal
	}
	plaintext, err := s.aead.Open(nil, raw[:ns], raw[ns:], s.aad)
	if err != nil {
		return nil, ErrUnseal
	}
	return plaintext, nil
}
