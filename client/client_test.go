package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePortal simulates the server's auth surface: one valid access token at
// a time, one-shot refresh tokens.
type fakePortal struct {
	mu              sync.Mutex
	accessToken     string
	refreshToken    string
	tokenSeq        int
	refreshCalls    int32
	failRefresh     bool
	rejectProtected bool
	protectedHits   int32
}

func (p *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		pair := p.rotate()
		writeData(w, map[string]any{"tokens": pair})
	})

	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&p.refreshCalls, 1)

		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		p.mu.Lock()
		valid := !p.failRefresh && req.RefreshToken == p.refreshToken
		p.mu.Unlock()

		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": "UNAUTHORIZED", "message": "invalid refresh token"},
			})
			return
		}

		writeData(w, p.rotate())
	})

	mux.HandleFunc("/api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/api/v1/protected", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&p.protectedHits, 1)

		p.mu.Lock()
		valid := !p.rejectProtected && r.Header.Get("Authorization") == "Bearer "+p.accessToken
		p.mu.Unlock()

		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": "UNAUTHORIZED", "message": "invalid or expired token"},
			})
			return
		}
		writeData(w, map[string]string{"ok": "true"})
	})

	return mux
}

func (p *fakePortal) rotate() TokenPair {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenSeq++
	p.accessToken = "access-" + string(rune('a'+p.tokenSeq))
	p.refreshToken = "refresh-" + string(rune('a'+p.tokenSeq))
	return TokenPair{
		AccessToken:  p.accessToken,
		RefreshToken: p.refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    900,
	}
}

// expireAccess invalidates the current access token without touching the
// refresh token, simulating access-token expiry.
func (p *fakePortal) expireAccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessToken = "expired"
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakePortal) {
	t.Helper()
	portal := &fakePortal{}
	server := httptest.NewServer(portal.handler())
	t.Cleanup(server.Close)
	return New(server.URL, opts...), portal
}

func TestClient_LoginAndRequest(t *testing.T) {
	c, _ := newTestClient(t)

	require.NoError(t, c.Login(context.Background(), "jane@example.com", "password123"))
	assert.True(t, c.Authenticated())

	resp, err := c.Do(context.Background(), http.MethodGet, "/api/v1/protected", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_RequestWithoutLogin(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Do(context.Background(), http.MethodGet, "/api/v1/protected", nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestClient_RefreshesOnceAndRetries(t *testing.T) {
	c, portal := newTestClient(t)
	require.NoError(t, c.Login(context.Background(), "jane@example.com", "password123"))

	portal.expireAccess()

	resp, err := c.Do(context.Background(), http.MethodGet, "/api/v1/protected", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&portal.refreshCalls))
}

func TestClient_ConcurrentRequestsShareOneRefresh(t *testing.T) {
	var logouts int32
	c, portal := newTestClient(t, WithLogoutHandler(func() {
		atomic.AddInt32(&logouts, 1)
	}))
	require.NoError(t, c.Login(context.Background(), "jane@example.com", "password123"))

	portal.expireAccess()

	const workers = 12
	var wg sync.WaitGroup
	results := make([]error, workers)
	statuses := make([]int, workers)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			resp, err := c.Do(context.Background(), http.MethodGet, "/api/v1/protected", nil)
			results[i] = err
			if err == nil {
				statuses[i] = resp.StatusCode
				resp.Body.Close()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, results[i])
		assert.Equal(t, http.StatusOK, statuses[i])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&portal.refreshCalls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&logouts))
}

func TestClient_RefreshFailureLogsOutOnce(t *testing.T) {
	var logouts int32
	c, portal := newTestClient(t, WithLogoutHandler(func() {
		atomic.AddInt32(&logouts, 1)
	}))
	require.NoError(t, c.Login(context.Background(), "jane@example.com", "password123"))

	portal.mu.Lock()
	portal.failRefresh = true
	portal.mu.Unlock()
	portal.expireAccess()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = c.Do(context.Background(), http.MethodGet, "/api/v1/protected", nil)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		assert.ErrorIs(t, errs[i], ErrSessionExpired)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&logouts))
	assert.Equal(t, int32(1), atomic.LoadInt32(&portal.refreshCalls))
	assert.False(t, c.Authenticated())
}

func TestClient_SecondFailureAfterRetryIsTerminal(t *testing.T) {
	c, portal := newTestClient(t)
	require.NoError(t, c.Login(context.Background(), "jane@example.com", "password123"))

	// Refresh succeeds but the protected endpoint keeps rejecting, so the
	// retried request 401s again. Do must surface that 401 instead of
	// looping into another refresh.
	portal.mu.Lock()
	portal.rejectProtected = true
	portal.mu.Unlock()

	resp, err := c.Do(context.Background(), http.MethodGet, "/api/v1/protected", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&portal.refreshCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&portal.protectedHits))
}
