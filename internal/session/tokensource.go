// ABOUTME: Adapts the session controller to golang.org/x/oauth2.TokenSource
// ABOUTME: Lets oauth2-aware HTTP stacks reuse the current access token

package session

import (
	"errors"

	"golang.org/x/oauth2"
)

// ErrNoCredentials is returned by the token source when the session holds no pair.
var ErrNoCredentials = errors.New("session has no credentials")

type controllerTokenSource struct {
	c *Controller
}

// OAuth2TokenSource returns a TokenSource backed by the controller. Each call
// reads the current pair, so rotations are picked up immediately. The source
// never refreshes on its own; refresh goes through Controller.Refresh.
func (c *Controller) OAuth2TokenSource() oauth2.TokenSource {
	return controllerTokenSource{c: c}
}

func (s controllerTokenSource) Token() (*oauth2.Token, error) {
	pair := s.c.Tokens()
	if pair.AccessToken == "" {
		return nil, ErrNoCredentials
	}

	tok := &oauth2.Token{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	}
	if claims, err := pair.Claims(); err == nil {
		tok.Expiry = claims.ExpiresAt
	}
	return tok, nil
}
