// ABOUTME: Session controller owning the token pair and the authentication state machine
// ABOUTME: Serializes all mutations and publishes de-duplicated state transitions

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-client/internal/auth"
	"github.com/2389/coven-client/internal/credstore"
)

// State is the authentication state of the session.
type State string

// Session states
const (
	StateSignedOut     State = "signed_out"
	StateAuthenticated State = "authenticated"
	StateRefreshing    State = "refreshing"
	StateError         State = "error"
)

// Controller errors
var (
	ErrIncompleteTokens  = credstore.ErrIncompleteTokens
	ErrNotAuthenticated  = errors.New("session is not authenticated")
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

// Refresher exchanges a refresh token with the gateway. A successful exchange
// delivers the new pair through the rotation headers, which end up in
// LoginSucceeded.
type Refresher interface {
	RefreshSession(ctx context.Context, refreshToken string) error
}

// Controller owns the TokenPair and the State. Every mutation goes through
// writeMu, so mutations are applied one at a time in a single order; the
// fields themselves sit behind mu so readers are never blocked by store I/O.
type Controller struct {
	writeMu sync.Mutex

	mu           sync.RWMutex
	state        State
	tokens       auth.TokenPair
	lastErr      error
	bootstrapped bool

	store  credstore.Store
	stream *broadcaster
	logger *slog.Logger
}

// NewController creates a controller in the signed-out state. Pass nil logger
// for default.
func NewController(store credstore.Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session")
	return &Controller{
		state:  StateSignedOut,
		store:  store,
		stream: newBroadcaster(logger),
		logger: logger,
	}
}

// Bootstrap loads the persisted pair. The state becomes authenticated when a
// pair is found and signed out otherwise; a store failure counts as "no pair".
// Only the first call touches the store; later calls return the current state.
func (c *Controller) Bootstrap(ctx context.Context) State {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	done := c.bootstrapped
	c.mu.RUnlock()
	if done {
		return c.State()
	}

	pair, ok, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("failed to load stored credentials, starting signed out", "error", err)
		ok = false
	}

	c.mu.Lock()
	c.bootstrapped = true
	c.mu.Unlock()

	if ok {
		c.apply(pair, StateAuthenticated, nil)
		c.logger.Info("restored session from credential store")
	} else {
		c.apply(auth.TokenPair{}, StateSignedOut, nil)
	}
	return c.State()
}

// LoginSucceeded persists the pair, makes it current and moves to authenticated.
// Repeating the current pair while authenticated changes nothing and emits nothing.
// A store write failure is logged; the in-memory session still succeeds.
func (c *Controller) LoginSucceeded(ctx context.Context, pair auth.TokenPair) error {
	if !pair.Complete() {
		return ErrIncompleteTokens
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	unchanged := c.state == StateAuthenticated && c.tokens == pair
	c.mu.RUnlock()
	if unchanged {
		return nil
	}

	if err := c.store.Save(ctx, pair); err != nil {
		c.logger.Warn("failed to persist credentials", "error", err)
	}

	c.apply(pair, StateAuthenticated, nil)
	return nil
}

// Logout clears the store and the in-memory pair and moves to signed out.
func (c *Controller) Logout(ctx context.Context) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("failed to clear stored credentials", "error", err)
	}
	c.apply(auth.TokenPair{}, StateSignedOut, nil)
}

// HandleUnauthorized is called by the network client when the gateway rejects
// an authenticated call without rotating credentials. It ends the session.
func (c *Controller) HandleUnauthorized(ctx context.Context) {
	if c.State() == StateSignedOut {
		return
	}
	c.logger.Info("gateway rejected credentials, signing out")
	c.Logout(ctx)
}

// Refresh asks r to exchange the current refresh token. The session moves to
// refreshing for the duration of the call. On success the rotation headers
// have already delivered the new pair; an unauthorized failure signs out; a
// cancelled call restores the previous state; any other failure moves to
// error while keeping the pair. Refresh never retries.
func (c *Controller) Refresh(ctx context.Context, r Refresher) error {
	c.writeMu.Lock()
	c.mu.RLock()
	prev := c.state
	pair := c.tokens
	c.mu.RUnlock()

	switch prev {
	case StateRefreshing:
		c.writeMu.Unlock()
		return ErrRefreshInProgress
	case StateSignedOut:
		c.writeMu.Unlock()
		return ErrNotAuthenticated
	}
	c.apply(pair, StateRefreshing, nil)
	c.writeMu.Unlock()

	err := r.RefreshSession(ctx, pair.RefreshToken)

	switch {
	case err == nil:
		c.settleRefresh(StateAuthenticated, nil)
		return nil
	case isUnauthorized(err):
		c.Logout(ctx)
		return err
	case errors.Is(err, context.Canceled):
		c.settleRefresh(prev, nil)
		return err
	default:
		c.logger.Warn("session refresh failed", "error", err)
		c.settleRefresh(StateError, err)
		return fmt.Errorf("refreshing session: %w", err)
	}
}

// settleRefresh leaves the refreshing state unless something else (a rotation
// or a logout) already moved the session on.
func (c *Controller) settleRefresh(next State, cause error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	still := c.state == StateRefreshing
	pair := c.tokens
	c.mu.RUnlock()

	if still {
		c.apply(pair, next, cause)
	}
}

// apply replaces the pair and state and publishes the state if it changed.
// Must be called with writeMu held so publications follow mutation order.
func (c *Controller) apply(pair auth.TokenPair, next State, cause error) {
	c.mu.Lock()
	prev := c.state
	c.tokens = pair
	c.state = next
	c.lastErr = cause
	c.mu.Unlock()

	if prev == next {
		return
	}

	c.logger.Debug("session state changed", "from", prev, "to", next)
	c.stream.publish(next)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the failure that moved the session to StateError, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Tokens returns the current pair (zero when signed out).
func (c *Controller) Tokens() auth.TokenPair {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// AccessToken returns the current access token or "".
func (c *Controller) AccessToken() string {
	return c.Tokens().AccessToken
}

// RefreshToken returns the current refresh token or "".
func (c *Controller) RefreshToken() string {
	return c.Tokens().RefreshToken
}

// StateStream returns a channel receiving every state transition applied
// after the call. Earlier transitions are not replayed. The channel is closed
// when ctx is cancelled or the controller is closed.
func (c *Controller) StateStream(ctx context.Context) <-chan State {
	return c.stream.subscribe(ctx, nil)
}

// WatchState is StateStream preceded by the state current at subscription
// time, so a late subscriber cannot miss a transition that raced with it.
func (c *Controller) WatchState(ctx context.Context) <-chan State {
	// writeMu keeps a transition from landing between reading the current
	// state and registering the subscriber.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current := c.State()
	return c.stream.subscribe(ctx, &current)
}

// Close closes every subscriber channel.
func (c *Controller) Close() {
	c.stream.close()
}

// isUnauthorized reports whether err carries an unauthorized classification.
// The network client's error type implements Unauthorized().
func isUnauthorized(err error) bool {
	var u interface{ Unauthorized() bool }
	return errors.As(err, &u) && u.Unauthorized()
}
