// Package auth holds the credential value types shared by the client core.
//
// # Token Pair
//
// The gateway issues a TokenPair: a short-lived access token sent as
// "Authorization: Bearer <token>" and a refresh token used to obtain a new
// pair. Pairs are immutable values and are always replaced as a whole.
//
// # Rotation Headers
//
// The gateway rotates credentials silently by attaching two headers to any
// response:
//
//	X-New-Access-Token:  <access token>
//	X-New-Refresh-Token: <refresh token>
//
// RotatedTokens only reports a rotation when both headers are present and
// non-empty; a lone header is ignored.
//
// # Claims
//
// Access tokens are usually JWTs. TokenPair.Claims decodes them WITHOUT
// verifying the signature, purely to surface the subject and expiry in
// diagnostics. Authorization decisions are never made from these values.
package auth
