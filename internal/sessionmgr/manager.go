// ABOUTME: Session manager running the "became active" bootstrap pipeline
// ABOUTME: Fetches account and config concurrently and swaps in a consistent snapshot

package sessionmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-client/internal/client"
	"github.com/2389/coven-client/internal/repository"
	"github.com/2389/coven-client/internal/session"
)

// Snapshot is the latest successfully bootstrapped server state.
type Snapshot struct {
	Account   repository.Account
	AppConfig repository.AppConfig
	FetchedAt time.Time
}

// SessionSource is the session controller as seen by the manager.
type SessionSource interface {
	State() session.State
	WatchState(ctx context.Context) <-chan session.State
}

// CacheScope is the shared response cache as seen by the manager.
type CacheScope interface {
	Clear(ctx context.Context) error
}

// Options configures a Manager.
type Options struct {
	// Cooldown makes HandleBecameActive a no-op for this long after a
	// successful bootstrap. Zero bootstraps every time.
	Cooldown time.Duration
	// Flags receives the app config's feature flags. Defaults to a new FlagStore.
	Flags MutableConfigProvider
	// Cache, when set, is cleared on sign-out so one account's cached reads
	// are never served to the next. Pass the repository.Scope the cached
	// repositories share, so fetches in flight at sign-out are not cached.
	Cache  CacheScope
	Now    func() time.Time
	Logger *slog.Logger
}

// Manager owns the Snapshot and the state derived from it.
type Manager struct {
	session  SessionSource
	accounts repository.AccountRepository
	config   repository.ConfigRepository
	flags    MutableConfigProvider
	cache    CacheScope
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger

	// bootMu serializes bootstraps so a second caller sees the first one's
	// result and the cooldown.
	bootMu sync.Mutex

	mu           sync.RWMutex
	snapshot     *Snapshot
	entitlements Entitlements
	lastSuccess  time.Time
	// generation changes on every reset; a bootstrap started before a reset
	// must not install its result after it.
	generation uint64
}

// New creates a manager.
func New(src SessionSource, accounts repository.AccountRepository, config repository.ConfigRepository, opts Options) *Manager {
	if opts.Flags == nil {
		opts.Flags = NewFlagStore()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		session:  src,
		accounts: accounts,
		config:   config,
		flags:    opts.Flags,
		cache:    opts.Cache,
		cooldown: opts.Cooldown,
		now:      opts.Now,
		logger:   opts.Logger.With("component", "sessionmgr"),
	}
}

// HandleBecameActive bootstraps the snapshot when the session is
// authenticated. Unauthorized and cancelled bootstraps return nil: the
// former already ended the session, the latter was superseded. Other
// failures are logged and returned; the previous snapshot is kept.
func (m *Manager) HandleBecameActive(ctx context.Context) error {
	m.bootMu.Lock()
	defer m.bootMu.Unlock()

	if st := m.session.State(); st != session.StateAuthenticated {
		m.logger.Debug("skipping bootstrap", "state", st)
		return nil
	}

	m.mu.RLock()
	last := m.lastSuccess
	gen := m.generation
	m.mu.RUnlock()

	if m.cooldown > 0 && !last.IsZero() && m.now().Sub(last) < m.cooldown {
		m.logger.Debug("skipping bootstrap within cooldown", "last", last)
		return nil
	}

	var (
		acct repository.Account
		cfg  repository.AppConfig
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		acct, err = m.accounts.FetchMe(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		cfg, err = m.config.FetchAppConfig(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		switch {
		case client.IsKind(err, client.KindUnauthorized):
			m.logger.Info("bootstrap rejected, session already ended")
			return nil
		case client.IsCancelled(err) || errors.Is(err, context.Canceled):
			m.logger.Debug("bootstrap cancelled")
			return nil
		default:
			m.logger.Warn("bootstrap failed, keeping previous snapshot", "error", err)
			return fmt.Errorf("bootstrapping session: %w", err)
		}
	}

	m.install(gen, acct, cfg)
	return nil
}

func (m *Manager) install(gen uint64, acct repository.Account, cfg repository.AppConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		m.logger.Debug("discarding bootstrap result from before sign-out")
		return
	}

	now := m.now()
	m.snapshot = &Snapshot{Account: acct, AppConfig: cfg, FetchedAt: now}
	m.entitlements = entitlementsFor(acct)
	m.lastSuccess = now
	m.flags.ApplyConfig(cfg)

	m.logger.Info("session bootstrapped", "account", acct.ID, "plan", acct.Plan)
}

// ResetForSignOut clears the snapshot, entitlements and cached reads.
// App-wide flags are left as they are.
// The cache is cleared first so that once Snapshot reports no session, no
// cached read of the old account remains.
func (m *Manager) ResetForSignOut() {
	if m.cache != nil {
		if err := m.cache.Clear(context.Background()); err != nil {
			m.logger.Warn("failed to clear cache on sign-out", "error", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
	m.entitlements = Entitlements{}
	m.lastSuccess = time.Time{}
	m.generation++
}

// Snapshot returns the current snapshot; ok is false before the first
// successful bootstrap and after sign-out. The value shares slices and maps
// with the manager and must be treated as read-only.
func (m *Manager) Snapshot() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snapshot == nil {
		return Snapshot{}, false
	}
	return *m.snapshot, true
}

// Entitlements returns the entitlements of the current snapshot.
func (m *Manager) Entitlements() Entitlements {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entitlements
}

// Flags returns the feature flag provider.
func (m *Manager) Flags() ConfigProvider {
	return m.flags
}

// Run resets the manager every time the session signs out. It blocks until
// ctx is cancelled or the session stream closes.
func (m *Manager) Run(ctx context.Context) error {
	for st := range m.session.WatchState(ctx) {
		if st == session.StateSignedOut {
			m.ResetForSignOut()
		}
	}
	return ctx.Err()
}
