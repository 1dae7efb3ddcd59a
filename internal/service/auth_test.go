package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/chris12pannapara-hub/client-portal/internal/auth"
	"github.com/chris12pannapara-hub/client-portal/internal/domain"
	"github.com/chris12pannapara-hub/client-portal/internal/repository"
	apperrors "github.com/chris12pannapara-hub/client-portal/pkg/errors"
)

// fakeUserRepo is an in-memory UserRepository that applies lockout updates,
// so timeline tests see counter state the way the real store would.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user")
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == identifier || u.Username == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("user")
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, id uuid.UUID, firstName, lastName *string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user")
	}
	if firstName != nil {
		u.FirstName = *firstName
	}
	if lastName != nil {
		u.LastName = *lastName
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return apperrors.NotFound("user")
	}
	u.PasswordHash = hash
	return nil
}

func (r *fakeUserRepo) UpdateLockout(_ context.Context, id uuid.UUID, attempts int, lockedUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return apperrors.NotFound("user")
	}
	u.FailedLoginAttempts = attempts
	u.LockedUntil = lockedUntil
	return nil
}

func (r *fakeUserRepo) ResetLockout(_ context.Context, id uuid.UUID, lastLoginAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return apperrors.NotFound("user")
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &lastLoginAt
	return nil
}

// fakeSessionRepo is an in-memory SessionRepository whose Redeem holds a
// mutex across the whole rotation, matching the transactional guarantee of
// the Postgres implementation.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	reasons  map[string]string
	now      func() time.Time
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[string]*domain.Session),
		reasons:  make(map[string]string),
		now:      time.Now,
	}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.TokenHash] = &cp
	return nil
}

func (r *fakeSessionRepo) Redeem(_ context.Context, tokenHash string, newSession *domain.Session) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.sessions[tokenHash]
	if !ok {
		return nil, repository.ErrSessionUnknown
	}
	if old.RevokedAt != nil {
		if r.reasons[tokenHash] == "rotated" {
			return nil, repository.ErrSessionAlreadyUsed
		}
		return nil, repository.ErrSessionRevoked
	}
	now := r.now().UTC()
	if now.After(old.ExpiresAt) {
		return nil, repository.ErrSessionExpired
	}

	old.RevokedAt = &now
	r.reasons[tokenHash] = "rotated"
	newSession.UserID = old.UserID
	cp := *newSession
	r.sessions[newSession.TokenHash] = &cp

	oldCopy := *old
	return &oldCopy, nil
}

func (r *fakeSessionRepo) RevokeByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tokenHash]
	if !ok {
		return nil, repository.ErrSessionUnknown
	}
	if s.RevokedAt == nil {
		now := r.now().UTC()
		s.RevokedAt = &now
		r.reasons[tokenHash] = "logout"
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) RevokeByID(_ context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, s := range r.sessions {
		if s.ID == id && s.UserID == userID {
			if s.RevokedAt == nil {
				now := r.now().UTC()
				s.RevokedAt = &now
				r.reasons[hash] = "revoked"
			}
			return nil
		}
	}
	return repository.ErrSessionUnknown
}

func (r *fakeSessionRepo) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := r.now().UTC()
	for hash, s := range r.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
			r.reasons[hash] = "revoked"
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	var out []domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.RevokedAt == nil && now.Before(s.ExpiresAt) {
			out = append(out, *s)
		}
	}
	return out, nil
}

// capturingRecorder collects audit entries synchronously.
type capturingRecorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *capturingRecorder) Record(entry domain.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *capturingRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Action
	}
	return out
}

func (r *capturingRecorder) last(action string) (domain.AuditEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Action == action {
			return r.entries[i], true
		}
	}
	return domain.AuditEntry{}, false
}

type authFixture struct {
	svc      *AuthService
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	audit    *capturingRecorder
	user     *domain.User
	clock    *fakeClock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const testPassword = "correct-horse-battery"

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user := &domain.User{
		ID:           uuid.New(),
		Email:        "jane@example.com",
		Username:     "jdoe",
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		IsActive:     true,
	}

	users := newFakeUserRepo(user)
	sessions := newFakeSessionRepo()
	recorder := &capturingRecorder{}
	clock := &fakeClock{t: time.Now().UTC()}

	tokens := auth.NewTokenManager("test-secret", 15*time.Minute, "client-portal")
	svc := NewAuthService(users, sessions, tokens, recorder, nil,
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
		AuthConfig{
			LockoutThreshold: 5,
			LockoutCooldown:  15 * time.Minute,
			RefreshTTL:       7 * 24 * time.Hour,
		},
	)
	svc.now = clock.Now
	sessions.now = clock.Now

	return &authFixture{svc: svc, users: users, sessions: sessions, audit: recorder, user: user, clock: clock}
}

func (f *authFixture) login(t *testing.T, password string) (*domain.TokenPair, error) {
	t.Helper()
	pair, _, err := f.svc.Login(context.Background(), domain.LoginRequest{
		Identifier: "jane@example.com",
		Password:   password,
	}, ClientContext{IPAddress: "203.0.113.10", UserAgent: "portal-test"})
	return pair, err
}

func TestLogin_ByUsername(t *testing.T) {
	f := newAuthFixture(t)

	pair, _, err := f.svc.Login(context.Background(), domain.LoginRequest{
		Identifier: "jdoe",
		Password:   testPassword,
	}, ClientContext{})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.login(t, testPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	entry, ok := f.audit.last(domain.AuditLoginSuccess)
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeSuccess, entry.Outcome)

	stored, err := f.users.GetByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLogin_UnknownIdentifier(t *testing.T) {
	f := newAuthFixture(t)

	_, _, err := f.svc.Login(context.Background(), domain.LoginRequest{
		Identifier: "nobody@example.com",
		Password:   "whatever-password",
	}, ClientContext{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestLogin_InactiveAccount(t *testing.T) {
	f := newAuthFixture(t)
	f.user.IsActive = false

	_, err := f.login(t, testPassword)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestLogin_BadPasswordIncrementsCounter(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.login(t, "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	stored, err := f.users.GetByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockedUntil)
}

func TestLogin_LockoutTimeline(t *testing.T) {
	// Five failures at t=0..4min lock the account until t=19min. A correct
	// password at t=10min still fails locked; at t=20min it succeeds and
	// the counter resets.
	f := newAuthFixture(t)

	for i := 0; i < 5; i++ {
		_, err := f.login(t, "wrong-password")
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		f.clock.Advance(time.Minute)
	}

	stored, err := f.users.GetByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.FailedLoginAttempts)
	require.NotNil(t, stored.LockedUntil)
	assert.Contains(t, f.audit.actions(), domain.AuditAccountLocked)

	f.clock.Advance(5 * time.Minute)
	_, err = f.login(t, testPassword)
	assert.ErrorIs(t, err, apperrors.ErrLocked)
	assert.Equal(t, 423, apperrors.HTTPStatus(err))

	f.clock.Advance(10 * time.Minute)
	_, err = f.login(t, testPassword)
	require.NoError(t, err)

	stored, err = f.users.GetByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockedUntil)
}

func TestLogin_CounterRestartsAfterExpiredLockout(t *testing.T) {
	f := newAuthFixture(t)

	for i := 0; i < 5; i++ {
		_, _ = f.login(t, "wrong-password")
	}

	f.clock.Advance(16 * time.Minute)
	_, err := f.login(t, "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	stored, err := f.users.GetByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockedUntil)
}

func TestRefresh_RotatesSession(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.login(t, testPassword)
	require.NoError(t, err)

	newPair, err := f.svc.Refresh(context.Background(), pair.RefreshToken, ClientContext{})
	require.NoError(t, err)
	assert.NotEmpty(t, newPair.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)

	// The old value is now dead and its reuse is flagged distinctly.
	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken, ClientContext{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	rejected, ok := f.audit.last(domain.AuditRefreshRejected)
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeFailure, rejected.Outcome)

	// The rotated value still works.
	_, err = f.svc.Refresh(context.Background(), newPair.RefreshToken, ClientContext{})
	require.NoError(t, err)
}

func TestRefresh_UnknownToken(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Refresh(context.Background(), "never-issued", ClientContext{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, 401, apperrors.HTTPStatus(err))
}

func TestRefresh_ExpiredSession(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.login(t, testPassword)
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)

	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken, ClientContext{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRefresh_AfterLogout(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.login(t, testPassword)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), pair.RefreshToken, ClientContext{}))

	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken, ClientContext{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRefresh_ConcurrentRedemptionSingleWinner(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.login(t, testPassword)
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		successes int64
		mu        sync.Mutex
	)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.svc.Refresh(context.Background(), pair.RefreshToken, ClientContext{}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), successes)
}

func TestLogout_Idempotent(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.login(t, testPassword)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), pair.RefreshToken, ClientContext{}))
	require.NoError(t, f.svc.Logout(context.Background(), pair.RefreshToken, ClientContext{}))
	require.NoError(t, f.svc.Logout(context.Background(), "never-issued", ClientContext{}))
}

func TestLogoutAll_RevokesEverySession(t *testing.T) {
	f := newAuthFixture(t)

	first, err := f.login(t, testPassword)
	require.NoError(t, err)
	second, err := f.login(t, testPassword)
	require.NoError(t, err)

	require.NoError(t, f.svc.LogoutAll(context.Background(), f.user.ID, ClientContext{}))

	_, err = f.svc.Refresh(context.Background(), first.RefreshToken, ClientContext{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = f.svc.Refresh(context.Background(), second.RefreshToken, ClientContext{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	active, err := f.sessions.ListActiveByUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.login(t, testPassword)
	require.NoError(t, err)

	err = f.svc.ChangePassword(context.Background(), f.user.ID, domain.ChangePasswordRequest{
		CurrentPassword: "wrong-password",
		NewPassword:     "new-password-123",
	}, ClientContext{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	err = f.svc.ChangePassword(context.Background(), f.user.ID, domain.ChangePasswordRequest{
		CurrentPassword: testPassword,
		NewPassword:     "new-password-123",
	}, ClientContext{})
	require.NoError(t, err)

	// Old refresh tokens are revoked by the change.
	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken, ClientContext{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.login(t, "new-password-123")
	require.NoError(t, err)
}
