// ABOUTME: TokenPair value type holding the access/refresh credential pair
// ABOUTME: Decodes access-token JWT claims without verification for diagnostics

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrOpaqueToken  = errors.New("access token is not a JWT")
	ErrMissingClaim = errors.New("missing claim")
)

// TokenPair is the paired access/refresh credential issued by the gateway.
// It is a value type: holders replace it wholesale and never mutate one half.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Complete reports whether both halves of the pair are present.
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// IsZero reports whether the pair carries no credentials at all.
func (p TokenPair) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// String hides the credential values so pairs can be logged safely.
func (p TokenPair) String() string {
	return fmt.Sprintf("TokenPair{access:%d bytes, refresh:%d bytes}", len(p.AccessToken), len(p.RefreshToken))
}

// Claims is the subset of access-token claims the client cares about.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the claims carry an expiry that lies before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Claims decodes the access token's claims. The signature is NOT verified:
// the gateway is the only party that can do that, the client only reads the
// values for display and logging. Opaque tokens return ErrOpaqueToken.
func (p TokenPair) Claims() (Claims, error) {
	parser := jwt.NewParser()
	mapClaims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(p.AccessToken, mapClaims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrOpaqueToken, err)
	}

	var claims Claims

	sub, err := mapClaims.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	claims.Subject = sub

	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims, nil
}
