// ABOUTME: Credential header helpers shared by the network client and the fake gateway
// ABOUTME: Parses "Authorization: Bearer <token>" values and token rotation headers

package auth

import (
	"net/http"
	"strings"
)

// Header names used for credentials on the wire.
const (
	HeaderAuthorization   = "Authorization"
	HeaderNewAccessToken  = "X-New-Access-Token"
	HeaderNewRefreshToken = "X-New-Refresh-Token"
)

const bearerPrefix = "Bearer "

// ExtractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func ExtractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// RotatedTokens reads the rotation headers from a response. ok is true only
// when both values are present and non-empty.
func RotatedTokens(h http.Header) (TokenPair, bool) {
	pair := TokenPair{
		AccessToken:  strings.TrimSpace(h.Get(HeaderNewAccessToken)),
		RefreshToken: strings.TrimSpace(h.Get(HeaderNewRefreshToken)),
	}
	if !pair.Complete() {
		return TokenPair{}, false
	}
	return pair, true
}

// SetRotatedTokens writes the rotation headers. Used by gateways (and test
// fakes) that rotate credentials on a response.
func SetRotatedTokens(h http.Header, pair TokenPair) {
	h.Set(HeaderNewAccessToken, pair.AccessToken)
	h.Set(HeaderNewRefreshToken, pair.RefreshToken)
}
