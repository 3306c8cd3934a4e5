// ABOUTME: Feature-flag and entitlement state derived from bootstrap results
// ABOUTME: FlagStore holds app-wide flags; Entitlements are account-scoped

package sessionmgr

import (
	"maps"
	"slices"
	"sync"

	"github.com/2389/coven-client/internal/repository"
)

// ConfigProvider is the read side of the app-wide configuration.
type ConfigProvider interface {
	Enabled(flag string) bool
	Flags() map[string]bool
	Limit(name string) (int, bool)
}

// MutableConfigProvider is a ConfigProvider the manager can update after a
// successful bootstrap.
type MutableConfigProvider interface {
	ConfigProvider
	ApplyConfig(cfg repository.AppConfig)
}

// FlagStore is the in-memory MutableConfigProvider.
type FlagStore struct {
	mu       sync.RWMutex
	features map[string]bool
	limits   map[string]int
}

// NewFlagStore creates an empty store. Unknown flags are disabled.
func NewFlagStore() *FlagStore {
	return &FlagStore{
		features: map[string]bool{},
		limits:   map[string]int{},
	}
}

// ApplyConfig replaces the flags and limits wholesale.
func (s *FlagStore) ApplyConfig(cfg repository.AppConfig) {
	features := maps.Clone(cfg.Features)
	if features == nil {
		features = map[string]bool{}
	}
	limits := maps.Clone(cfg.Limits)
	if limits == nil {
		limits = map[string]int{}
	}

	s.mu.Lock()
	s.features = features
	s.limits = limits
	s.mu.Unlock()
}

func (s *FlagStore) Enabled(flag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.features[flag]
}

// Flags returns a copy of every known flag.
func (s *FlagStore) Flags() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.features)
}

func (s *FlagStore) Limit(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.limits[name]
	return v, ok
}

// Entitlements are the capabilities granted to the signed-in account.
type Entitlements struct {
	Plan    string
	granted map[string]bool
}

func entitlementsFor(acct repository.Account) Entitlements {
	granted := make(map[string]bool, len(acct.Entitlements))
	for _, name := range acct.Entitlements {
		granted[name] = true
	}
	return Entitlements{Plan: acct.Plan, granted: granted}
}

// Has reports whether the entitlement was granted.
func (e Entitlements) Has(name string) bool {
	return e.granted[name]
}

// Names returns the granted entitlements in sorted order.
func (e Entitlements) Names() []string {
	return slices.Sorted(maps.Keys(e.granted))
}
