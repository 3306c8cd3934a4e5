// ABOUTME: Unit tests for TokenPair helpers and unverified claim decoding
// ABOUTME: Covers JWT and opaque tokens plus rotation header parsing

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("test-secret-key-for-jwt-signing"))
	require.NoError(t, err)
	return s
}

func TestTokenPair_Complete(t *testing.T) {
	tests := []struct {
		name     string
		pair     TokenPair
		complete bool
		zero     bool
	}{
		{"both", TokenPair{AccessToken: "a", RefreshToken: "r"}, true, false},
		{"access only", TokenPair{AccessToken: "a"}, false, false},
		{"refresh only", TokenPair{RefreshToken: "r"}, false, false},
		{"empty", TokenPair{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.complete, tt.pair.Complete())
			assert.Equal(t, tt.zero, tt.pair.IsZero())
		})
	}
}

func TestTokenPair_StringHidesValues(t *testing.T) {
	pair := TokenPair{AccessToken: "secret-access", RefreshToken: "secret-refresh"}
	assert.NotContains(t, pair.String(), "secret")
}

func TestTokenPair_Claims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	access := signedToken(t, jwt.MapClaims{
		"sub": "user-42",
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	})

	claims, err := TokenPair{AccessToken: access, RefreshToken: "r"}.Claims()
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.True(t, claims.ExpiresAt.Equal(exp))
	assert.False(t, claims.Expired(time.Now()))
	assert.True(t, claims.Expired(exp.Add(time.Second)))
}

func TestTokenPair_Claims_ExpiredTokenStillDecodes(t *testing.T) {
	access := signedToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	claims, err := TokenPair{AccessToken: access}.Claims()
	require.NoError(t, err)
	assert.True(t, claims.Expired(time.Now()))
}

func TestTokenPair_Claims_Opaque(t *testing.T) {
	_, err := TokenPair{AccessToken: "opaque-token"}.Claims()
	assert.True(t, errors.Is(err, ErrOpaqueToken))
}

func TestTokenPair_Claims_MissingSubject(t *testing.T) {
	access := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	_, err := TokenPair{AccessToken: access}.Claims()
	assert.True(t, errors.Is(err, ErrMissingClaim))
}

func TestRotatedTokens(t *testing.T) {
	tests := []struct {
		name    string
		access  string
		refresh string
		ok      bool
	}{
		{"both present", "new-a", "new-r", true},
		{"access only", "new-a", "", false},
		{"refresh only", "", "new-r", false},
		{"whitespace only", " ", " ", false},
		{"none", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.access != "" {
				h.Set(HeaderNewAccessToken, tt.access)
			}
			if tt.refresh != "" {
				h.Set(HeaderNewRefreshToken, tt.refresh)
			}

			pair, ok := RotatedTokens(h)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, TokenPair{AccessToken: tt.access, RefreshToken: tt.refresh}, pair)
			}
		})
	}
}

func TestExtractBearerToken_FromOAuth2Header(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	(&oauth2.Token{AccessToken: "abc", TokenType: "Bearer"}).SetAuthHeader(req)
	assert.Equal(t, "Bearer abc", req.Header.Get(HeaderAuthorization))

	token, msg := ExtractBearerToken(req.Header.Get(HeaderAuthorization))
	assert.Empty(t, msg)
	assert.Equal(t, "abc", token)
}

func TestExtractBearerToken_Errors(t *testing.T) {
	_, msg := ExtractBearerToken("")
	assert.Equal(t, "missing authorization header", msg)

	_, msg = ExtractBearerToken("Basic xyz")
	assert.Equal(t, "invalid authorization header format", msg)

	_, msg = ExtractBearerToken("Bearer ")
	assert.Equal(t, "empty token", msg)
}
