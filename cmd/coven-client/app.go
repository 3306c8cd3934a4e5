// ABOUTME: Wires the configured stores, session controller, client and repositories together
// ABOUTME: One app value per command invocation, closed in reverse order of construction

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/coven-client/internal/cache"
	"github.com/2389/coven-client/internal/client"
	"github.com/2389/coven-client/internal/config"
	"github.com/2389/coven-client/internal/credstore"
	"github.com/2389/coven-client/internal/netlog"
	"github.com/2389/coven-client/internal/repository"
	"github.com/2389/coven-client/internal/session"
	"github.com/2389/coven-client/internal/sessionmgr"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger

	session *session.Controller
	netlog  *netlog.Store // nil when disabled
	api     *client.Client
	repos   repository.Repositories
	manager *sessionmgr.Manager
	flags   *sessionmgr.FlagStore

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	built := false
	defer func() {
		if !built {
			a.close()
		}
	}()

	store, err := openCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	if c, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	a.session = session.NewController(store, logger)
	a.closers = append(a.closers, a.session.Close)
	a.session.Bootstrap(ctx)

	opts := client.Options{
		BaseURL:              cfg.API.BaseURL,
		RequestTimeout:       cfg.API.RequestTimeout,
		UploadTimeout:        cfg.API.UploadTimeout,
		RefreshPath:          cfg.API.RefreshPath,
		FailFastWithoutToken: cfg.API.FailFastWithoutToken,
		Credentials:          a.session,
		Logger:               logger,
	}
	if cfg.NetLog.Enabled {
		a.netlog = netlog.Open(cfg.NetLog.Path, netlog.Options{
			MaxAge:     cfg.NetLog.MaxAge,
			MaxEntries: cfg.NetLog.MaxEntries,
			Logger:     logger,
		})
		a.closers = append(a.closers, a.netlog.Close)
		opts.Log = a.netlog
	}

	api, err := client.New(opts)
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	a.api = api

	shared, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if c, ok := shared.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	scope := repository.NewScope(shared)
	a.repos = repository.NewCached(repository.NewRemote(a.api).Repositories(), scope, repository.CacheOptions{
		ListTTL:    cfg.Cache.ListTTL,
		HistoryTTL: cfg.Cache.HistoryTTL,
		Logger:     logger,
	})

	a.flags = sessionmgr.NewFlagStore()
	a.manager = sessionmgr.New(a.session, a.repos.Accounts, a.repos.Config, sessionmgr.Options{
		Cooldown: cfg.Session.BootstrapCooldown,
		Flags:    a.flags,
		Cache:    scope,
		Logger:   logger,
	})

	built = true
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openCredentials(cfg config.CredentialsConfig) (credstore.Store, error) {
	switch cfg.Backend {
	case config.CredentialsMemory:
		return credstore.NewMemoryStore(), nil
	case config.CredentialsSQLite:
		s, err := credstore.NewSQLiteStore(cfg.Path, []byte(cfg.Secret))
		if err != nil {
			return nil, fmt.Errorf("opening credential database: %w", err)
		}
		return s, nil
	default:
		s, err := credstore.NewFileStore(cfg.Path, []byte(cfg.Secret))
		if err != nil {
			return nil, fmt.Errorf("opening credential file: %w", err)
		}
		return s, nil
	}
}

func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	if cfg.Backend != config.CacheRedis {
		return cache.NewMemory(cfg.MaxEntries), nil
	}
	c, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to redis cache: %w", err)
	}
	return c, nil
}
