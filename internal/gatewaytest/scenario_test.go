// ABOUTME: End-to-end scenarios wiring the session, client, repositories and manager together
// ABOUTME: Runs against the fake gateway with real stores in temp directories

package gatewaytest_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-client/internal/auth"
	"github.com/2389/coven-client/internal/cache"
	"github.com/2389/coven-client/internal/client"
	"github.com/2389/coven-client/internal/credstore"
	"github.com/2389/coven-client/internal/gatewaytest"
	"github.com/2389/coven-client/internal/netlog"
	"github.com/2389/coven-client/internal/repository"
	"github.com/2389/coven-client/internal/session"
	"github.com/2389/coven-client/internal/sessionmgr"
)

const secret = "0123456789abcdef0123456789abcdef"

var initialPair = auth.TokenPair{AccessToken: "access-0", RefreshToken: "refresh-0"}

type stack struct {
	gw    *gatewaytest.Gateway
	store credstore.Store
	ctrl  *session.Controller
	log   *netlog.Store
	api   *client.Client
	repos repository.Repositories
	mgr   *sessionmgr.Manager
}

func newStack(t *testing.T, store credstore.Store) *stack {
	t.Helper()

	gw := gatewaytest.New(initialPair)
	t.Cleanup(gw.Close)

	ctrl := session.NewController(store, nil)
	t.Cleanup(ctrl.Close)

	logs := netlog.Open(filepath.Join(t.TempDir(), "network-log.json"), netlog.Options{})
	t.Cleanup(logs.Close)

	api, err := client.New(client.Options{
		BaseURL:              gw.URL(),
		FailFastWithoutToken: true,
		Credentials:          ctrl,
		Log:                  logs,
	})
	require.NoError(t, err)

	scope := repository.NewScope(cache.NewMemory(0))
	repos := repository.NewCached(repository.NewRemote(api).Repositories(), scope, repository.CacheOptions{})
	mgr := sessionmgr.New(ctrl, repos.Accounts, repos.Config, sessionmgr.Options{Cache: scope})

	return &stack{gw: gw, store: store, ctrl: ctrl, log: logs, api: api, repos: repos, mgr: mgr}
}

func TestScenario_UnauthorizedSignsOutAndNextCallFailsFast(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, credstore.NewMemoryStore())
	require.NoError(t, s.ctrl.LoginSucceeded(ctx, initialPair))

	states := s.ctrl.StateStream(ctx)

	s.gw.RevokeAll()
	_, err := s.repos.Accounts.FetchMe(ctx)
	require.Error(t, err)
	assert.True(t, client.IsKind(err, client.KindUnauthorized))

	select {
	case st := <-states:
		assert.Equal(t, session.StateSignedOut, st)
	case <-time.After(time.Second):
		t.Fatal("no sign-out transition")
	}
	assert.Empty(t, s.ctrl.AccessToken())

	hits := s.gw.TotalHits()
	_, err = s.repos.Accounts.FetchMe(ctx)
	assert.True(t, client.IsKind(err, client.KindUnauthorized))
	assert.Equal(t, hits, s.gw.TotalHits(), "no network call after forced sign-out")

	_, ok, err := s.store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "stored credentials are cleared")
}

func TestScenario_SilentRotationPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials")
	store, err := credstore.NewFileStore(path, []byte(secret))
	require.NoError(t, err)

	s := newStack(t, store)
	require.NoError(t, s.ctrl.LoginSucceeded(ctx, initialPair))

	rotated := auth.TokenPair{AccessToken: "access-rotated", RefreshToken: "refresh-rotated"}
	s.gw.RotateOnNextCall(rotated)

	_, err = s.repos.Config.FetchAppConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, rotated, s.ctrl.Tokens())
	assert.Equal(t, session.StateAuthenticated, s.ctrl.State())

	// Simulated restart
	reopened, err := credstore.NewFileStore(path, []byte(secret))
	require.NoError(t, err)
	restarted := session.NewController(reopened, nil)
	defer restarted.Close()

	assert.Equal(t, session.StateAuthenticated, restarted.Bootstrap(ctx))
	assert.Equal(t, rotated, restarted.Tokens())

	// Later calls carry the rotated token
	_, err = s.repos.Accounts.FetchMe(ctx)
	require.NoError(t, err)
}

func TestScenario_BootstrapAndCache(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, credstore.NewMemoryStore())
	require.NoError(t, s.ctrl.LoginSucceeded(ctx, initialPair))

	require.NoError(t, s.mgr.HandleBecameActive(ctx))
	snap, ok := s.mgr.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "acct-1", snap.Account.ID)
	assert.True(t, s.mgr.Entitlements().Has("export"))
	assert.True(t, s.mgr.Flags().Enabled("transcripts"))

	// Account and config are now cached
	_, err := s.repos.Accounts.FetchMe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.gw.Hits("GET /v1/me"))

	// Completing an upload clears every cached read
	up, err := s.repos.Uploads.CreateUpload(ctx, repository.CreateUploadRequest{Filename: "take.m4a", ContentType: "audio/m4a"})
	require.NoError(t, err)
	done, err := s.repos.Uploads.CompleteUpload(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.UploadCompleted, done.Status)

	_, err = s.repos.Accounts.FetchMe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.gw.Hits("GET /v1/me"))

	recs, err := s.repos.History.ListHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestScenario_ShuffleRefreshesList(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, credstore.NewMemoryStore())
	require.NoError(t, s.ctrl.LoginSucceeded(ctx, initialPair))

	before, err := s.repos.Prompts.ListPrompts(ctx, "daily")
	require.NoError(t, err)
	require.Len(t, before, 2)

	shuffled, err := s.repos.Prompts.ShufflePrompts(ctx, "daily")
	require.NoError(t, err)
	assert.NotEqual(t, before, shuffled)

	after, err := s.repos.Prompts.ListPrompts(ctx, "daily")
	require.NoError(t, err)
	assert.Equal(t, shuffled, after)
	assert.Equal(t, 1, s.gw.Hits("GET /v1/prompts"))
}

func TestScenario_ExplicitRefresh(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, credstore.NewMemoryStore())
	require.NoError(t, s.ctrl.LoginSucceeded(ctx, initialPair))

	require.NoError(t, s.ctrl.Refresh(ctx, s.api))
	assert.Equal(t, session.StateAuthenticated, s.ctrl.State())
	assert.NotEqual(t, initialPair, s.ctrl.Tokens())

	_, err := s.repos.Accounts.FetchMe(ctx)
	require.NoError(t, err)

	s.gw.RevokeAll()
	err = s.ctrl.Refresh(ctx, s.api)
	require.Error(t, err)
	assert.Equal(t, session.StateSignedOut, s.ctrl.State())
}

func TestScenario_TracesAreRecordedAndRedacted(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, credstore.NewMemoryStore())
	require.NoError(t, s.ctrl.LoginSucceeded(ctx, initialPair))

	_, err := s.repos.Accounts.FetchMe(ctx)
	require.NoError(t, err)

	entries := s.log.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "/v1/me", e.Path)
	require.NotNil(t, e.StatusCode)
	assert.Equal(t, 200, *e.StatusCode)
	assert.Equal(t, "Bear…ss-0", e.RequestHeaders["Authorization"])
	require.NotNil(t, e.ResponseBodyPreview)
	assert.Contains(t, *e.ResponseBodyPreview, "a***@example.org")
}

func TestScenario_LoginAgainAfterRevocation(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, credstore.NewMemoryStore())
	require.NoError(t, s.ctrl.LoginSucceeded(ctx, initialPair))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = s.mgr.Run(runCtx) }()

	require.NoError(t, s.mgr.HandleBecameActive(ctx))

	s.gw.RevokeAll()
	_, err := s.repos.History.ListHistory(ctx)
	require.Error(t, err)
	assert.Eventually(t, func() bool {
		_, ok := s.mgr.Snapshot()
		return !ok
	}, time.Second, 5*time.Millisecond)

	fresh := auth.TokenPair{AccessToken: "access-new", RefreshToken: "refresh-new"}
	s.gw.Accept(fresh)
	require.NoError(t, s.ctrl.LoginSucceeded(ctx, fresh))
	require.NoError(t, s.mgr.HandleBecameActive(ctx))

	_, ok := s.mgr.Snapshot()
	assert.True(t, ok)
	assert.Equal(t, 2, s.gw.Hits("GET /v1/me"), "the cache was cleared on sign-out")
}
