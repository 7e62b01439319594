// Package sessionclient is an HTTP client for the BearcatBoard API that keeps
// the session alive. It attaches the access token to every request and, when
// a request is rejected for a missing or invalid token, refreshes the token
// once for all concurrent callers and replays their requests.
package sessionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bearcatboard/internal/models"

	"golang.org/x/sync/singleflight"
)

const refreshPath = "/auth/refresh-token"

// Client holds one access token and the refresh cookie of one user session.
// It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	store   TokenStore
	logger  *slog.Logger

	mu         sync.RWMutex
	token      string
	generation uint64

	refreshes       singleflight.Group
	expired         atomic.Bool
	onLoginRequired func()
}

type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. A cookie jar is added when it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenStore mirrors the access token to store.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.store = store }
}

// WithLoginRequired sets the hook run when the session can no longer be
// refreshed. It runs at most once until the next successful Login.
func WithLoginRequired(fn func()) Option {
	return func(c *Client) { c.onLoginRequired = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for the API at baseURL and restores any stored token.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	c := &Client{
		baseURL: u,
		store:   &MemoryStore{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}

	token, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	c.token = token

	return c, nil
}

// Token returns the current access token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) current() (string, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.generation
}

// setToken replaces the token and starts a new generation.
func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.generation++
	c.mu.Unlock()

	var err error
	if token == "" {
		err = c.store.Clear()
	} else {
		err = c.store.Save(token)
	}
	if err != nil {
		c.logger.Warn("failed to persist access token", slog.String("error", err.Error()))
	}
}

// Do sends a JSON request and decodes a 2xx response body into out when out
// is not nil. A 401, or a 403 carrying TOKEN_INVALID, from a non-auth
// endpoint triggers one shared refresh and a single replay.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	token, gen := c.current()
	resp, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if !isAuthEndpoint(path) && needsRefresh(resp) {
		drain(resp)
		if err := c.refresh(ctx, gen); err != nil {
			return err
		}
		token, _ = c.current()
		if resp, err = c.send(ctx, method, path, payload, token); err != nil {
			return err
		}
	}

	return decode(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// refresh obtains a new access token unless the token that failed has
// already been replaced. Concurrent callers share one refresh request, and a
// caller arriving just after a flight finished reuses its outcome.
func (c *Client) refresh(ctx context.Context, failedGen uint64) error {
	// The shared request must not die with the first caller's context.
	flightCtx := context.WithoutCancel(ctx)
	_, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		if c.expired.Load() {
			return nil, ErrSessionExpired
		}
		if c.superseded(failedGen) {
			return nil, nil
		}
		return nil, c.doRefresh(flightCtx)
	})
	return err
}

func (c *Client) superseded(failedGen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation != failedGen && c.token != ""
}

func (c *Client) doRefresh(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodPost, refreshPath, nil, "")
	if err != nil {
		return err
	}

	if isAuthFailure(resp.StatusCode) {
		drain(resp)
		c.logger.Info("refresh rejected, login required", slog.Int("status", resp.StatusCode))
		c.expire()
		return ErrSessionExpired
	}

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := decode(resp, &out); err != nil {
		return err
	}
	if out.AccessToken == "" {
		return fmt.Errorf("refresh response carried no access token")
	}

	c.setToken(out.AccessToken)
	return nil
}

// expire clears the session and runs the login hook once.
func (c *Client) expire() {
	c.setToken("")
	if c.expired.CompareAndSwap(false, true) && c.onLoginRequired != nil {
		c.onLoginRequired()
	}
}

// startSession stores a token obtained by logging in and re-arms the login hook.
func (c *Client) startSession(token string) {
	c.setToken(token)
	c.expired.Store(false)
}

// needsRefresh reports whether resp rejected the access token. A 403 for any
// other reason, such as touching someone else's post, is returned as is.
// The body stays readable.
func needsRefresh(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		raw, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		if err != nil {
			return false
		}
		var body struct {
			Code string `json:"code"`
		}
		return json.Unmarshal(raw, &body) == nil && body.Code == models.CodeTokenInvalid
	}
	return false
}

// isAuthFailure reports whether the refresh endpoint turned the cookie down.
func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// isAuthEndpoint excludes the session endpoints from refresh-and-retry so a
// failing login or refresh can never loop.
func isAuthEndpoint(path string) bool {
	switch strings.SplitN(path, "?", 2)[0] {
	case "/auth/login", "/auth/register", refreshPath, "/auth/logout":
		return true
	}
	return false
}

func decode(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
