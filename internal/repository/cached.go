// ABOUTME: Cache decorators applying TTL reads and write invalidation over repositories
// ABOUTME: All decorators share one cache; each repository reads with its own TTL

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-client/internal/cache"
)

// Default TTLs.
const (
	DefaultListTTL    = 5 * time.Minute
	DefaultHistoryTTL = 3 * time.Minute
)

// Cache keys. Parameterized keys are built with cache.Key.
const (
	keyAccount   = "account.me"
	keyConfig    = "config.app"
	keyPrompts   = "prompts.list"
	keyHistory   = "history.list"
	keyRecording = "history.recording"
)

// CacheOptions configures the decorators.
type CacheOptions struct {
	// ListTTL applies to account, config and prompt reads.
	ListTTL time.Duration
	// HistoryTTL applies to history lists and recording details.
	HistoryTTL time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// Scope is the cache shared by the decorators, divided into epochs. Every
// invalidation and every Clear starts a new epoch, and a fetch only writes
// its result back if no epoch started while it was in flight. A read that
// raced a sign-out or a write therefore never repopulates the cache.
type Scope struct {
	cache cache.Cache

	mu    sync.RWMutex
	epoch uint64
}

// NewScope wraps c.
func NewScope(c cache.Cache) *Scope {
	return &Scope{cache: c}
}

// Clear empties the cache and starts a new epoch.
func (s *Scope) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	return s.cache.Clear(ctx)
}

// remove drops keys and starts a new epoch.
func (s *Scope) remove(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++

	var errs []error
	for _, key := range keys {
		if err := s.cache.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scope) current() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// putIfCurrent stores v unless an epoch started after epoch. It reports
// whether the value was written.
func putIfCurrent[T any](ctx context.Context, s *Scope, epoch uint64, key string, v T, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.epoch != epoch {
		return false, nil
	}
	return true, cache.Put(ctx, s.cache, key, v, now)
}

// policy is the read-through/invalidate logic shared by every decorator.
// Cache failures are logged and never fail the call.
type policy struct {
	scope  *Scope
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// read returns a fresh cached value or calls fetch and caches its result.
// Failed fetches are never cached.
func read[T any](ctx context.Context, p policy, key string, fetch func(context.Context) (T, error)) (T, error) {
	v, ok, err := cache.Get[T](ctx, p.scope.cache, key, p.ttl, p.now())
	if err != nil {
		p.logger.Debug("cache read failed", "key", key, "error", err)
	}
	if ok {
		return v, nil
	}
	return fill(ctx, p, key, fetch)
}

// refresh drops key before calling fetch, so the result is never the value
// cached before the call, even when fetch fails.
func refresh[T any](ctx context.Context, p policy, key string, fetch func(context.Context) (T, error)) (T, error) {
	p.invalidate(ctx, key)
	return fill(ctx, p, key, fetch)
}

func fill[T any](ctx context.Context, p policy, key string, fetch func(context.Context) (T, error)) (T, error) {
	epoch := p.scope.current()
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	written, err := putIfCurrent(ctx, p.scope, epoch, key, v, p.now())
	switch {
	case err != nil:
		p.logger.Debug("cache write failed", "key", key, "error", err)
	case !written:
		p.logger.Debug("discarding result fetched before invalidation", "key", key)
	}
	return v, nil
}

func (p policy) invalidate(ctx context.Context, keys ...string) {
	if err := p.scope.remove(ctx, keys...); err != nil {
		p.logger.Debug("cache invalidation failed", "keys", keys, "error", err)
	}
}

func (p policy) clear(ctx context.Context) {
	if err := p.scope.Clear(ctx); err != nil {
		p.logger.Warn("cache clear failed", "error", err)
	}
}

// NewCached wraps inner with cache decorators sharing scope.
func NewCached(inner Repositories, scope *Scope, opts CacheOptions) Repositories {
	if opts.ListTTL <= 0 {
		opts.ListTTL = DefaultListTTL
	}
	if opts.HistoryTTL <= 0 {
		opts.HistoryTTL = DefaultHistoryTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "repository")

	list := policy{scope: scope, ttl: opts.ListTTL, now: opts.Now, logger: logger}
	history := policy{scope: scope, ttl: opts.HistoryTTL, now: opts.Now, logger: logger}

	return Repositories{
		Accounts: &CachedAccounts{inner: inner.Accounts, p: list},
		Config:   &CachedConfig{inner: inner.Config, p: list},
		Prompts:  &CachedPrompts{inner: inner.Prompts, p: list},
		History:  &CachedHistory{inner: inner.History, p: history},
		Uploads:  &CachedUploads{inner: inner.Uploads, p: history},
	}
}

// CachedAccounts caches FetchMe; UpdateProfile invalidates it.
type CachedAccounts struct {
	inner AccountRepository
	p     policy
}

func (c *CachedAccounts) FetchMe(ctx context.Context) (Account, error) {
	return read(ctx, c.p, keyAccount, c.inner.FetchMe)
}

func (c *CachedAccounts) UpdateProfile(ctx context.Context, update ProfileUpdate) (Account, error) {
	acct, err := c.inner.UpdateProfile(ctx, update)
	if err != nil {
		return acct, err
	}
	c.p.invalidate(ctx, keyAccount)
	return acct, nil
}

// CachedConfig caches FetchAppConfig.
type CachedConfig struct {
	inner ConfigRepository
	p     policy
}

func (c *CachedConfig) FetchAppConfig(ctx context.Context) (AppConfig, error) {
	return read(ctx, c.p, keyConfig, c.inner.FetchAppConfig)
}

// CachedPrompts caches prompt lists per category. A shuffle writes its result
// under the list key, so the next ListPrompts sees the shuffled order.
type CachedPrompts struct {
	inner PromptRepository
	p     policy
}

func (c *CachedPrompts) ListPrompts(ctx context.Context, category string) ([]Prompt, error) {
	return read(ctx, c.p, cache.Key(keyPrompts, category), func(ctx context.Context) ([]Prompt, error) {
		return c.inner.ListPrompts(ctx, category)
	})
}

func (c *CachedPrompts) ShufflePrompts(ctx context.Context, category string) ([]Prompt, error) {
	return refresh(ctx, c.p, cache.Key(keyPrompts, category), func(ctx context.Context) ([]Prompt, error) {
		return c.inner.ShufflePrompts(ctx, category)
	})
}

// CachedHistory caches the history list and recording details.
type CachedHistory struct {
	inner HistoryRepository
	p     policy
}

func (c *CachedHistory) ListHistory(ctx context.Context) ([]Recording, error) {
	return read(ctx, c.p, keyHistory, c.inner.ListHistory)
}

func (c *CachedHistory) GetRecording(ctx context.Context, id string) (Recording, error) {
	return read(ctx, c.p, cache.Key(keyRecording, id), func(ctx context.Context) (Recording, error) {
		return c.inner.GetRecording(ctx, id)
	})
}

// DeleteRecording invalidates the list and the recording's detail.
func (c *CachedHistory) DeleteRecording(ctx context.Context, id string) error {
	if err := c.inner.DeleteRecording(ctx, id); err != nil {
		return err
	}
	c.p.invalidate(ctx, keyHistory, cache.Key(keyRecording, id))
	return nil
}

// CachedUploads never caches. Completing an upload creates a recording and
// may change the account's usage and any list, so the whole cache is cleared.
type CachedUploads struct {
	inner UploadRepository
	p     policy
}

func (c *CachedUploads) CreateUpload(ctx context.Context, req CreateUploadRequest) (Upload, error) {
	return c.inner.CreateUpload(ctx, req)
}

func (c *CachedUploads) CompleteUpload(ctx context.Context, id string) (Upload, error) {
	up, err := c.inner.CompleteUpload(ctx, id)
	if err != nil {
		return up, err
	}
	c.p.clear(ctx)
	return up, nil
}
