// Package client is the authenticated HTTP client for the coven gateway.
//
// # Calls
//
// Every call is described by a Request and goes through Send (raw response)
// or Do (JSON-decoded response):
//
//	var me repository.Account
//	_, err := c.Do(ctx, client.Request{Path: "/v1/me", RequiresAuth: true}, &me)
//
// # Credentials
//
// Authenticated calls carry "Authorization: Bearer <token>" using the token
// held by the Credentials implementation (the session controller). On every
// response, whatever its status, the X-New-Access-Token and
// X-New-Refresh-Token headers are checked; when both are present and
// non-empty the pair is handed to LoginSucceeded. A 401 on an authenticated
// call that did not rotate credentials calls HandleUnauthorized, which ends
// the session. The client never retries.
//
// # Errors
//
// Failures are *Error values tagged with a Kind. Cancellation by the caller
// is reported as KindCancelled and should be ignored by callers:
//
//	if client.IsCancelled(err) {
//		return
//	}
//
// # Tracing
//
// Each call produces one netlog.Entry, redacted before it leaves the client,
// delivered to the LogSink when the call completes.
package client
