// ABOUTME: Authenticated JSON client for the coven gateway HTTP API
// ABOUTME: Attaches bearer tokens, captures rotated credentials and records redacted traces

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"github.com/2389/coven-client/internal/auth"
	"github.com/2389/coven-client/internal/netlog"
	"github.com/2389/coven-client/internal/redact"
)

// Default per-call timeouts.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultUploadTimeout  = 5 * time.Minute
	DefaultRefreshPath    = "/v1/auth/refresh"
)

// Credentials is the session owner as seen by the client. The session
// controller implements it. The token source is read on every call, so a
// rotation applies to the next request.
type Credentials interface {
	OAuth2TokenSource() oauth2.TokenSource
	LoginSucceeded(ctx context.Context, pair auth.TokenPair) error
	HandleUnauthorized(ctx context.Context)
}

// LogSink receives one redacted entry per call. Append must not block for
// long and cannot fail the call.
type LogSink interface {
	Append(entry netlog.Entry)
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	RefreshPath    string
	// FailFastWithoutToken makes authenticated calls fail with
	// KindUnauthorized, without a network round trip, when no access token
	// is held.
	FailFastWithoutToken bool

	HTTPClient  *http.Client
	Credentials Credentials
	Log         LogSink
	Logger      *slog.Logger
	Now         func() time.Time
}

// Request describes one gateway call. Path is relative to the base URL.
type Request struct {
	Method       string
	Path         string
	Query        url.Values
	Body         any
	RequiresAuth bool
	// Upload selects the longer upload timeout.
	Upload bool
}

// Response is a completed call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client issues gateway calls. It is safe for concurrent use and holds no
// per-call state.
type Client struct {
	baseURL        *url.URL
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	refreshPath    string
	failFast       bool

	http   *http.Client
	creds  Credentials
	tokens oauth2.TokenSource
	log    LogSink
	logger *slog.Logger
	now    func() time.Time
}

// New creates a client. The base URL must be absolute.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, newError(KindInvalidURL, "new", "parsing base URL", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, newError(KindInvalidURL, "new", fmt.Sprintf("base URL %q must be absolute", opts.BaseURL), nil)
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = DefaultUploadTimeout
	}
	if opts.RefreshPath == "" {
		opts.RefreshPath = DefaultRefreshPath
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var tokens oauth2.TokenSource
	if opts.Credentials != nil {
		tokens = opts.Credentials.OAuth2TokenSource()
	}

	return &Client{
		baseURL:        base,
		requestTimeout: opts.RequestTimeout,
		uploadTimeout:  opts.UploadTimeout,
		refreshPath:    opts.RefreshPath,
		failFast:       opts.FailFastWithoutToken,
		http:           opts.HTTPClient,
		creds:          opts.Credentials,
		tokens:         tokens,
		log:            opts.Log,
		logger:         opts.Logger.With("component", "client"),
		now:            opts.Now,
	}, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// buildURL joins a relative path (which may carry its own query) onto the base URL.
func (c *Client) buildURL(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, fmt.Errorf("path %q must be relative", path)
	}

	u := c.baseURL.JoinPath(ref.EscapedPath())
	q := ref.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u, nil
}

// Send performs the call. On a non-2xx status it returns both the response
// and an *Error classifying it; every other failure returns a nil response.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	method := methodOf(req)
	op := method + " " + req.Path

	start := c.now()
	trace := netlog.Entry{
		Timestamp: start,
		Method:    method,
		Path:      req.Path,
		FullURL:   req.Path,
	}

	resp, err := c.send(ctx, req, method, op, &trace)

	c.record(trace, start, resp, err)
	return resp, err
}

func (c *Client) send(ctx context.Context, req Request, method, op string, trace *netlog.Entry) (*Response, error) {
	u, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, newError(KindInvalidURL, op, "composing URL", err)
	}
	trace.FullURL = u.String()

	var token *oauth2.Token
	if req.RequiresAuth {
		token = c.currentToken()
	}
	if req.RequiresAuth && token == nil && c.failFast {
		return nil, newError(KindUnauthorized, op, "no access token held", nil)
	}

	var payload []byte
	if req.Body != nil {
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, newError(KindEncodingFailed, op, "encoding request body", err)
		}
	}

	timeout := c.requestTimeout
	if req.Upload {
		timeout = c.uploadTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, method, u.String(), body)
	if err != nil {
		return nil, newError(KindInvalidURL, op, "creating request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != nil {
		token.SetAuthHeader(httpReq)
	}

	trace.RequestHeaders = redact.Headers(httpReq.Header)
	if payload != nil {
		trace.RequestBodyPreview = stringPtr(redact.Body(payload, "application/json"))
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}

	// Rotation is honored on every response, whatever its status.
	rotated := c.captureRotation(ctx, httpResp.Header)

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return resp, nil
	}

	statusErr := statusError(op, httpResp, data, c.now())
	if statusErr.Kind == KindUnauthorized && req.RequiresAuth && !rotated && c.creds != nil {
		if c.stillCurrent(token) {
			c.creds.HandleUnauthorized(context.WithoutCancel(ctx))
		} else {
			c.logger.Debug("ignoring 401 for a token rotated while the call was in flight", "op", op)
		}
	}
	return resp, statusErr
}

// currentToken returns the session's access token, or nil when none is held.
func (c *Client) currentToken() *oauth2.Token {
	if c.tokens == nil {
		return nil
	}
	tok, err := c.tokens.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		return nil
	}
	return tok
}

// stillCurrent reports whether sent is still the session's token. A call sent
// without a token always counts as current.
func (c *Client) stillCurrent(sent *oauth2.Token) bool {
	if sent == nil {
		return true
	}
	cur := c.currentToken()
	return cur != nil && cur.AccessToken == sent.AccessToken
}

// captureRotation hands a rotated pair to the session owner.
func (c *Client) captureRotation(ctx context.Context, h http.Header) bool {
	pair, ok := auth.RotatedTokens(h)
	if !ok || c.creds == nil {
		return false
	}
	if err := c.creds.LoginSucceeded(context.WithoutCancel(ctx), pair); err != nil {
		c.logger.Warn("failed to apply rotated credentials", "error", err)
		return false
	}
	c.logger.Debug("captured rotated credentials")
	return true
}

// record completes the trace and hands it to the log sink.
func (c *Client) record(trace netlog.Entry, start time.Time, resp *Response, err error) {
	elapsed := c.now().Sub(start)
	ms := elapsed.Milliseconds()
	trace.DurationMs = &ms

	if resp != nil {
		status := resp.StatusCode
		trace.StatusCode = &status
		trace.ResponseHeaders = redact.Headers(resp.Header)
		if preview := redact.Body(resp.Body, resp.Header.Get("Content-Type")); preview != "" {
			trace.ResponseBodyPreview = &preview
		}
	}
	if err != nil {
		trace.ErrorDescription = stringPtr(err.Error())
	}

	attrs := []any{"method", trace.Method, "path", trace.Path, "duration", elapsed}
	if trace.StatusCode != nil {
		attrs = append(attrs, "status", *trace.StatusCode)
	}
	switch {
	case err == nil:
		c.logger.Debug("gateway call", attrs...)
	case IsCancelled(err):
		c.logger.Debug("gateway call cancelled", attrs...)
	default:
		c.logger.Debug("gateway call failed", append(attrs, "error", err)...)
	}

	if c.log != nil {
		c.log.Append(trace)
	}
}

// Do performs the call and decodes a successful JSON body into out. A nil
// out discards the body. The returned status is zero when no response arrived.
func (c *Client) Do(ctx context.Context, req Request, out any) (int, error) {
	resp, err := c.Send(ctx, req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if err != nil {
		return status, err
	}

	if out == nil {
		return status, nil
	}
	if err := decode(resp.Body, out); err != nil {
		e := newError(KindDecodingFailed, opName(req), "decoding response body", err)
		e.StatusCode = status
		return status, e
	}
	return status, nil
}

func decode(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(body, out)
}

func methodOf(req Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return req.Method
}

func opName(req Request) string {
	return methodOf(req) + " " + req.Path
}

// errorMessage extracts {"error": "..."} from a JSON error body, falling back
// to the trimmed body text.
func errorMessage(resp *http.Response, body []byte) string {
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &payload) == nil {
			if payload.Error != "" {
				return redact.Text(payload.Error)
			}
			if payload.Message != "" {
				return redact.Text(payload.Message)
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && utf8.ValidString(text) {
		const maxRunes = 200
		if runes := []rune(text); len(runes) > maxRunes {
			text = string(runes[:maxRunes])
		}
		return redact.Text(text)
	}
	return http.StatusText(resp.StatusCode)
}

func stringPtr(s string) *string {
	return &s
}
