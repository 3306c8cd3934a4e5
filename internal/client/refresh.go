// ABOUTME: Explicit session refresh against the gateway's refresh endpoint
// ABOUTME: Implements session.Refresher; new credentials arrive via rotation headers or the body

package client

import (
	"context"
	"net/http"

	"github.com/2389/coven-client/internal/auth"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshSession exchanges refreshToken for a new pair. The gateway normally
// answers with rotation headers, which Send has already applied; a body
// carrying the pair is accepted as well. A 2xx answer with neither is a
// decoding failure.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) error {
	req := Request{
		Method: http.MethodPost,
		Path:   c.refreshPath,
		Body:   refreshRequest{RefreshToken: refreshToken},
	}

	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	if _, ok := auth.RotatedTokens(resp.Header); ok {
		return nil
	}

	var pair auth.TokenPair
	if err := decode(resp.Body, &pair); err != nil || !pair.Complete() {
		e := newError(KindDecodingFailed, opName(req), "refresh response carried no credentials", err)
		e.StatusCode = resp.StatusCode
		return e
	}
	if c.creds != nil {
		if err := c.creds.LoginSucceeded(ctx, pair); err != nil {
			return err
		}
	}
	return nil
}
