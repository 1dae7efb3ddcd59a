// Package client is the Go client for the portal API. It owns the token
// pair for a logged-in user and transparently refreshes the access token
// when a protected request comes back 401, collapsing concurrent refresh
// attempts into a single exchange.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when a refresh exchange fails and the client
// has logged itself out. The caller must re-authenticate.
var ErrSessionExpired = errors.New("session expired, login required")

// ErrNotAuthenticated is returned for protected calls before Login.
var ErrNotAuthenticated = errors.New("not authenticated")

// TokenPair mirrors the server's token response.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string

	group    singleflight.Group
	onLogout func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogoutHandler registers a callback invoked exactly once per forced
// logout, when a refresh exchange fails.
func WithLogoutHandler(fn func()) Option {
	return func(c *Client) { c.onLogout = fn }
}

// New creates a portal API client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Login authenticates with an email or username and stores the resulting
// token pair.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body, err := json.Marshal(map[string]string{"identifier": identifier, "password": password})
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, "/api/v1/auth/login", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, env)
	}

	var data struct {
		Tokens TokenPair `json:"tokens"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}

	c.setTokens(data.Tokens.AccessToken, data.Tokens.RefreshToken)
	return nil
}

// Logout revokes the current session server-side and clears local tokens.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	access := c.accessToken
	refresh := c.refreshToken
	c.accessToken = ""
	c.refreshToken = ""
	c.mu.Unlock()

	if access == "" || refresh == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"refresh_token": refresh})
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, http.MethodPost, "/api/v1/auth/logout", body, access)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Authenticated reports whether the client currently holds a token pair.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshToken != ""
}

// Do executes a protected API request. On a 401 it performs one refresh
// exchange, shared with every other request that hit a 401 concurrently, and
// retries the request exactly once with the new access token. A second 401
// after the retry is terminal for this request. If the refresh itself fails,
// the client logs out and returns ErrSessionExpired.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token := c.currentAccessToken()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	resp, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	newToken, err := c.refreshAfter(ctx, token)
	if err != nil {
		return nil, err
	}

	// Retry exactly once; whatever comes back is final.
	return c.send(ctx, method, path, body, newToken)
}

// refreshAfter exchanges the refresh token for a new pair, unless another
// goroutine already rotated the tokens after failedToken was issued.
// Concurrent callers share one in-flight exchange through the singleflight
// group.
func (c *Client) refreshAfter(ctx context.Context, failedToken string) (string, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		current := c.currentAccessToken()
		if current != "" && current != failedToken {
			// A refresh completed while this caller was waiting.
			return current, nil
		}
		return c.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// exchange performs the server-side refresh. It is never cancelled midway:
// a partially applied rotation would desync the stored pair, so the HTTP
// call runs on a background context with its own timeout.
func (c *Client) exchange(_ context.Context) (string, error) {
	c.mu.RLock()
	refresh := c.refreshToken
	c.mu.RUnlock()

	if refresh == "" {
		return "", c.forceLogout()
	}

	exchangeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	body, err := json.Marshal(map[string]string{"refresh_token": refresh})
	if err != nil {
		return "", err
	}

	resp, err := c.post(exchangeCtx, "/api/v1/auth/refresh", body)
	if err != nil {
		return "", c.forceLogout()
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil || resp.StatusCode != http.StatusOK {
		return "", c.forceLogout()
	}

	var pair TokenPair
	if err := json.Unmarshal(env.Data, &pair); err != nil {
		return "", c.forceLogout()
	}

	c.setTokens(pair.AccessToken, pair.RefreshToken)
	return pair.AccessToken, nil
}

func (c *Client) forceLogout() error {
	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.mu.Unlock()

	if c.onLogout != nil {
		c.onLogout()
	}
	return ErrSessionExpired
}

func (c *Client) setTokens(access, refresh string) {
	c.mu.Lock()
	c.accessToken = access
	c.refreshToken = refresh
	c.mu.Unlock()
}

func (c *Client) currentAccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.http.Do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func decodeEnvelope(resp *http.Response) (*apiEnvelope, error) {
	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

func apiError(status int, env *apiEnvelope) error {
	if env.Error != nil {
		return fmt.Errorf("api error %d: %s: %s", status, env.Error.Code, env.Error.Message)
	}
	return fmt.Errorf("api error %d", status)
}
