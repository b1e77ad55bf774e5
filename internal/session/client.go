package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultCookieName is the session cookie the application issues.
const DefaultCookieName = "connect.sid"

// DefaultRetryDelay is the pause before the single retry of an idempotent request.
const DefaultRetryDelay = 500 * time.Millisecond

// Credential is the session cookie obtained by Authenticate.
type Credential struct {
	Username string
	Cookie   string
	Value    string
	IssuedAt time.Time
}

// Recorder observes request outcomes. internal/metrics implements it.
type Recorder interface {
	ObserveRequest(method string, status int, duration time.Duration)
	RecordRetry(method string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, int, time.Duration) {}
func (nopRecorder) RecordRetry(string)                        {}

// Client talks to one application instance on behalf of one user at a time.
// It is safe for concurrent use, but all calls share one credential.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cookieName string
	retryDelay time.Duration
	logger     *slog.Logger
	recorder   Recorder

	mu   sync.RWMutex
	cred *Credential
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. It must not have a cookie
// jar; the session cookie is managed by the Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.cookieName = name
		}
	}
}

// WithRetryDelay overrides DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// New creates a client for the application at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("session: base URL is required")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("session: base URL %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cookieName: DefaultCookieName,
		retryDelay: DefaultRetryDelay,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		recorder:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the application URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Credential returns the stored credential, if any.
func (c *Client) Credential() (Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred == nil {
		return Credential{}, false
	}
	return *c.cred, true
}

// Authenticate logs in and stores the session cookie. On any failure the
// previously stored credential is cleared and an *AuthError is returned.
func (c *Client) Authenticate(ctx context.Context, username, password string) (Credential, error) {
	c.clear()

	resp, err := c.Send(ctx, Call{
		Method:    http.MethodPost,
		Path:      "/login",
		Body:      map[string]string{"username": username, "password": password, "type": "LOGIN"},
		Anonymous: true,
	})
	if err != nil {
		return Credential{}, &AuthError{Username: username, Err: err}
	}
	if !resp.OK() {
		return Credential{}, &AuthError{Username: username, Status: resp.StatusCode, Reason: snippet(resp.Body)}
	}

	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == c.cookieName && ck.Value != "" {
			cookie = ck
		}
	}
	if cookie == nil {
		return Credential{}, &AuthError{
			Username: username,
			Status:   resp.StatusCode,
			Reason:   fmt.Sprintf("no %s cookie in response", c.cookieName),
		}
	}

	cred := Credential{
		Username: username,
		Cookie:   cookie.Name,
		Value:    cookie.Value,
		IssuedAt: time.Now(),
	}
	c.mu.Lock()
	c.cred = &cred
	c.mu.Unlock()

	c.logger.Debug("authenticated", "username", username)
	return cred, nil
}

func (c *Client) clear() {
	c.mu.Lock()
	c.cred = nil
	c.mu.Unlock()
}

// Call describes one request.
type Call struct {
	Method string
	Path   string
	// Body is JSON-encoded unless it is already []byte or json.RawMessage.
	Body any
	// Anonymous sends the request without the session cookie.
	Anonymous bool
}

// Request issues an authenticated request.
func (c *Client) Request(ctx context.Context, method, path string, body any) (*Response, error) {
	return c.Send(ctx, Call{Method: method, Path: path, Body: body})
}

// Send issues a request described by call. The returned error is always a
// *RequestError; a non-2xx response is not an error.
func (c *Client) Send(ctx context.Context, call Call) (*Response, error) {
	method := strings.ToUpper(call.Method)
	reqErr := func(err error) error {
		return &RequestError{Method: method, Path: call.Path, Err: err}
	}

	var cookie *http.Cookie
	if !call.Anonymous {
		cred, ok := c.Credential()
		if !ok {
			return nil, reqErr(ErrNotAuthenticated)
		}
		cookie = &http.Cookie{Name: cred.Cookie, Value: cred.Value}
	}

	body, err := encodeBody(call.Body)
	if err != nil {
		return nil, reqErr(err)
	}

	maxAttempts := 1
	if idempotent(method) {
		maxAttempts = 2
	}

	for attempt := 1; ; attempt++ {
		resp, err := c.roundTrip(ctx, method, call.Path, body, cookie)
		if err == nil {
			resp.Attempts = attempt
		}

		retry := attempt < maxAttempts && ctx.Err() == nil &&
			(err != nil || retryableStatus(resp.StatusCode))
		if !retry {
			if err != nil {
				return nil, reqErr(err)
			}
			return resp, nil
		}

		c.recorder.RecordRetry(method)
		c.logger.Debug("retrying request", "method", method, "path", call.Path, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, reqErr(ctx.Err())
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, cookie *http.Cookie) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	elapsed := time.Since(start)

	c.recorder.ObserveRequest(method, httpResp.StatusCode, elapsed)
	c.logger.Debug("request",
		"method", method,
		"path", path,
		"status", httpResp.StatusCode,
		"duration", elapsed,
	)

	return &Response{
		Method:     method,
		Path:       path,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Duration:   elapsed,
	}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		return data, nil
	}
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
