// Package transport talks to the remote document stack over HTTP.
//
// StackClient is the terminal collaborator of a link chain: it turns query
// definitions and mutations into /data requests and decodes the answers
// into responses. It also owns the session token and reports revocation and
// token refresh through Handlers.
package transport

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

	"github.com/hashicorp/go-retryablehttp"
)

// ErrNoToken is returned by Login when neither the credentials nor the
// client carry a token.
var ErrNoToken = errors.New("no session token")

// APIError is a non-2xx answer of the stack.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// IsUnauthorized reports whether err is a 401 answer.
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusUnauthorized
}

// Credentials open a session. Empty fields keep the client's current value.
type Credentials struct {
	URI   string
	Token string
}

// Handlers receive session notifications.
type Handlers struct {
	// OnRevocationChange is called when a request is refused with 401 and
	// again when the next request succeeds.
	OnRevocationChange func(revoked bool)

	// OnTokenRefresh is called whenever the token is replaced.
	OnTokenRefresh func(token string)
}

func (h Handlers) isSet() bool {
	return h.OnRevocationChange != nil || h.OnTokenRefresh != nil
}

// StackClient sends operations to the stack. It is safe for concurrent use.
type StackClient struct {
	mu       sync.Mutex
	uri      string
	token    string
	revoked  bool
	handlers Handlers

	http   *retryablehttp.Client
	logger *slog.Logger
}

// Option configures a StackClient.
type Option func(*StackClient)

// WithToken sets the initial token.
func WithToken(token string) Option {
	return func(c *StackClient) {
		c.token = token
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *StackClient) {
		c.http.HTTPClient = hc
	}
}

// WithRetry sets how many times a failed request is retried and the
// bounds of the backoff between attempts.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(c *StackClient) {
		c.http.RetryMax = max
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// WithLogger sets the logger, also used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *StackClient) {
		c.logger = logger
	}
}

// New creates a client for the stack at uri.
func New(uri string, opts ...Option) *StackClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second

	c := &StackClient{
		uri:    strings.TrimRight(uri, "/"),
		http:   rc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Exhausted retries hand back the last response so its status can be
	// reported as an APIError.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = c.logger
	return c
}

// URI returns the stack URI.
func (c *StackClient) URI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uri
}

// Token returns the current token.
func (c *StackClient) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken replaces the token and notifies OnTokenRefresh.
func (c *StackClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	h := c.handlers.OnTokenRefresh
	c.mu.Unlock()

	if h != nil {
		h(token)
	}
}

// SetHandlers installs the session handlers and reports whether handlers
// were already installed.
func (c *StackClient) SetHandlers(h Handlers) (replaced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	replaced = c.handlers.isSet()
	c.handlers = h
	return replaced
}

// Login opens a session with creds. It performs no request: the token is
// checked by the first call that needs it.
func (c *StackClient) Login(_ context.Context, creds *Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if creds != nil {
		if creds.URI != "" {
			c.uri = strings.TrimRight(creds.URI, "/")
		}
		if creds.Token != "" {
			c.token = creds.Token
		}
	}
	if c.token == "" {
		return ErrNoToken
	}
	c.revoked = false
	return nil
}

// Logout closes the session on the stack and forgets the token. The token
// is dropped even when the request fails.
func (c *StackClient) Logout(ctx context.Context) error {
	err := c.fetch(ctx, http.MethodDelete, "/auth/login", nil, nil)

	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// fetch performs one request. A non-nil body is sent as JSON; a non-nil out
// receives the decoded answer.
func (c *StackClient) fetch(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = b
	}

	c.mu.Lock()
	url, token := c.uri+path, c.token
	c.mu.Unlock()

	var raw any
	if payload != nil {
		raw = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, raw)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.logger.Debug("stack request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.setRevoked(true)
		}
		return &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Body: string(data)}
	}
	c.setRevoked(false)

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *StackClient) setRevoked(revoked bool) {
	c.mu.Lock()
	changed := c.revoked != revoked
	c.revoked = revoked
	h := c.handlers.OnRevocationChange
	c.mu.Unlock()

	if changed {
		c.logger.Info("session revocation changed", "revoked", revoked)
		if h != nil {
			h(revoked)
		}
	}
}
