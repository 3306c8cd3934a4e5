// ABOUTME: In-memory credential store for tests and ephemeral sessions
// ABOUTME: Supports injected failures so callers can exercise degraded paths

package credstore

import (
	"context"
	"sync"

	"github.com/2389/coven-client/internal/auth"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	pair auth.TokenPair
	set  bool

	// LoadErr, SaveErr and ClearErr, when non-nil, are returned by the
	// corresponding method instead of touching the stored pair.
	LoadErr  error
	SaveErr  error
	ClearErr error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored pair.
func (m *MemoryStore) Load(_ context.Context) (auth.TokenPair, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.LoadErr != nil {
		return auth.TokenPair{}, false, m.LoadErr
	}
	return m.pair, m.set, nil
}

// Save replaces the stored pair.
func (m *MemoryStore) Save(_ context.Context, pair auth.TokenPair) error {
	if err := validate(pair); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.pair = pair
	m.set = true
	return nil
}

// Clear removes the stored pair.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ClearErr != nil {
		return m.ClearErr
	}
	m.pair = auth.TokenPair{}
	m.set = false
	return nil
}
