// ABOUTME: Credential store interface and sealing helpers for persisted token pairs
// ABOUTME: Pairs are JSON-encoded and sealed with XChaCha20-Poly1305 under an HKDF key

package credstore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/2389/coven-client/internal/auth"
)

// ErrIncompleteTokens is returned by Save when either half of the pair is empty.
var ErrIncompleteTokens = errors.New("token pair is incomplete")

// ErrCorrupt is returned when a persisted pair cannot be opened or decoded.
var ErrCorrupt = errors.New("stored credentials are corrupt")

// MinSecretLength is the minimum length of the secret the sealing key is derived from.
const MinSecretLength = 16

// Store persists a single token pair. Implementations replace the pair
// atomically: a reader never sees one half of an old pair and one half of a new one.
type Store interface {
	// Load returns the stored pair. ok is false when nothing is stored.
	Load(ctx context.Context) (pair auth.TokenPair, ok bool, err error)
	// Save replaces the stored pair.
	Save(ctx context.Context, pair auth.TokenPair) error
	// Clear removes the stored pair. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// sealer encrypts serialized pairs at rest.
type sealer struct {
	aead cipher.AEAD
	ad   []byte
}

// newSealer derives a 32-byte key from secret with HKDF-SHA256. namespace is
// bound into both the derivation and the AEAD associated data so a blob
// written for one namespace cannot be opened under another.
func newSealer(secret []byte, namespace string) (*sealer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("credential secret must be at least %d bytes", MinSecretLength)
	}

	kdf := hkdf.New(sha256.New, secret, nil, []byte("coven-client/credentials/"+namespace))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving credential key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	return &sealer{aead: aead, ad: []byte(namespace)}, nil
}

// seal encodes and encrypts the pair; the nonce is prepended to the ciphertext.
func (s *sealer) seal(pair auth.TokenPair) ([]byte, error) {
	plaintext, err := json.Marshal(pair)
	if err != nil {
		return nil, fmt.Errorf("encoding token pair: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plaintext, s.ad), nil
}

// open reverses seal.
func (s *sealer) open(blob []byte) (auth.TokenPair, error) {
	ns := s.aead.NonceSize()
	if len(blob) < ns {
		return auth.TokenPair{}, fmt.Errorf("%w: ciphertext too short", ErrCorrupt)
	}

	plaintext, err := s.aead.Open(nil, blob[:ns], blob[ns:], s.ad)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var pair auth.TokenPair
	if err := json.Unmarshal(plaintext, &pair); err != nil {
		return auth.TokenPair{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !pair.Complete() {
		return auth.TokenPair{}, fmt.Errorf("%w: incomplete pair", ErrCorrupt)
	}
	return pair, nil
}

func validate(pair auth.TokenPair) error {
	if !pair.Complete() {
		return ErrIncompleteTokens
	}
	return nil
}
