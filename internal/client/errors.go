// ABOUTME: Typed error taxonomy for gateway calls
// ABOUTME: Every failure returned by the client is an *Error tagged with a Kind

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"
)

// Kind classifies a failed call.
type Kind string

// Error kinds
const (
	KindInvalidURL     Kind = "invalid_url"
	KindEncodingFailed Kind = "encoding_failed"
	KindDecodingFailed Kind = "decoding_failed"
	KindUnauthorized   Kind = "unauthorized"
	KindForbidden      Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindRateLimited    Kind = "rate_limited"
	KindServer         Kind = "server"
	KindHTTPStatus     Kind = "http_status"
	KindTransport      Kind = "transport"
	KindOffline        Kind = "offline"
	KindCancelled      Kind = "cancelled"
)

// Error is the error returned for every failed call.
type Error struct {
	Kind Kind
	// Op is "METHOD /path".
	Op         string
	StatusCode int
	// RetryAfter is the server's hint on rate-limited responses, zero when absent.
	RetryAfter time.Duration
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("status %d: %s", e.StatusCode, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, msg, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Unauthorized reports whether the gateway rejected the credentials.
func (e *Error) Unauthorized() bool {
	return e.Kind == KindUnauthorized
}

func newError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsCancelled reports whether the call was cancelled by its caller. Callers
// treat this as a no-op rather than a failure.
func IsCancelled(err error) bool {
	return IsKind(err, KindCancelled)
}

// statusError classifies a non-2xx response.
func statusError(op string, resp *http.Response, body []byte, now time.Time) *Error {
	e := &Error{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(resp, body),
	}

	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case code == http.StatusForbidden:
		e.Kind = KindForbidden
	case code == http.StatusNotFound:
		e.Kind = KindNotFound
	case code == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), now)
	case code >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindHTTPStatus
	}
	return e
}

// parseRetryAfter accepts delay-seconds or an HTTP date. Unparseable or past
// values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// transportError classifies a failure from http.Client.Do. ctx is the
// caller's context, not the per-call timeout context, so a caller
// cancellation can be told apart from a timeout.
func transportError(ctx context.Context, op string, err error) *Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return newError(KindCancelled, op, "call cancelled", err)
	}
	if isOffline(err) {
		return newError(KindOffline, op, "gateway unreachable", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTransport, op, "call timed out", err)
	}
	return newError(KindTransport, op, "transport failure", err)
}

// isOffline reports failures meaning no connection could be established.
func isOffline(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial" && !opErr.Timeout()
}
