package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/chris12pannapara-hub/client-portal/internal/auth"
	"github.com/chris12pannapara-hub/client-portal/internal/domain"
	"github.com/chris12pannapara-hub/client-portal/internal/repository"
	apperrors "github.com/chris12pannapara-hub/client-portal/pkg/errors"
	"github.com/chris12pannapara-hub/client-portal/pkg/kafka"
)

// dummyHash is compared against when the email does not resolve to an
// account, so the response time does not reveal account existence.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// ClientContext carries per-request client metadata into audit entries and
// session records.
type ClientContext struct {
	IPAddress string
	UserAgent string
}

// AuditRecorder is the fire-and-forget audit sink used by the services.
type AuditRecorder interface {
	Record(entry domain.AuditEntry)
}

// EventPublisher publishes domain events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event kafka.Event) error
}

// AuthConfig tunes the lockout tracker and refresh-token lifetime.
type AuthConfig struct {
	LockoutThreshold int
	LockoutCooldown  time.Duration
	RefreshTTL       time.Duration
}

// AuthService implements login, token refresh, logout, and password change.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   *auth.TokenManager
	audit    AuditRecorder
	events   EventPublisher
	logger   *slog.Logger
	cfg      AuthConfig
	now      func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenManager,
	auditRec AuditRecorder,
	events EventPublisher,
	logger *slog.Logger,
	cfg AuthConfig,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		audit:    auditRec,
		events:   events,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Login verifies credentials, applies the lockout policy, and issues a token
// pair with a fresh session. Only this operation distinguishes a locked
// account from bad credentials.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest, client ClientContext) (*domain.TokenPair, *domain.User, error) {
	now := s.now().UTC()

	user, err := s.users.GetByIdentifier(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
			s.audit.Record(domain.AuditEntry{
				Action:    domain.AuditLoginFailed,
				Outcome:   domain.OutcomeFailure,
				IPAddress: client.IPAddress,
				UserAgent: client.UserAgent,
				Details:   map[string]any{"identifier": req.Identifier, "reason": "unknown_account"},
			})
			return nil, nil, apperrors.Unauthorized("invalid email or password")
		}
		return nil, nil, apperrors.Internal(err)
	}

	if user.LockedAt(now) {
		s.audit.Record(domain.AuditEntry{
			UserID:    &user.ID,
			Action:    domain.AuditLoginFailed,
			Outcome:   domain.OutcomeFailure,
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
			Details:   map[string]any{"reason": "locked", "locked_until": user.LockedUntil},
		})
		return nil, nil, apperrors.Locked("account is temporarily locked, try again later")
	}

	if !user.IsActive {
		s.audit.Record(domain.AuditEntry{
			UserID:    &user.ID,
			Action:    domain.AuditLoginFailed,
			Outcome:   domain.OutcomeFailure,
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
			Details:   map[string]any{"reason": "inactive"},
		})
		return nil, nil, apperrors.Unauthorized("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, nil, s.recordFailedAttempt(ctx, user, client, now)
	}

	if err := s.users.ResetLockout(ctx, user.ID, now); err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	pair, err := s.issueTokens(ctx, user, client, now)
	if err != nil {
		return nil, nil, err
	}

	s.audit.Record(domain.AuditEntry{
		UserID:    &user.ID,
		Action:    domain.AuditLoginSuccess,
		Outcome:   domain.OutcomeSuccess,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	s.publish(ctx, user.ID.String(), kafka.NewEvent(kafka.EventAuthLogin, kafka.LoginPayload{
		UserID:    user.ID.String(),
		Email:     user.Email,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	}))

	return pair, user, nil
}

// recordFailedAttempt bumps the failure counter and locks the account at the
// threshold. A counter left over from an already-expired lockout restarts at
// one rather than continuing.
func (s *AuthService) recordFailedAttempt(ctx context.Context, user *domain.User, client ClientContext, now time.Time) error {
	attempts := user.FailedLoginAttempts + 1
	if user.LockedUntil != nil && !now.Before(*user.LockedUntil) {
		attempts = 1
	}

	var lockedUntil *time.Time
	if attempts >= s.cfg.LockoutThreshold {
		until := now.Add(s.cfg.LockoutCooldown)
		lockedUntil = &until
	}

	if err := s.users.UpdateLockout(ctx, user.ID, attempts, lockedUntil); err != nil {
		return apperrors.Internal(err)
	}

	s.audit.Record(domain.AuditEntry{
		UserID:    &user.ID,
		Action:    domain.AuditLoginFailed,
		Outcome:   domain.OutcomeFailure,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"reason": "bad_credentials", "attempts": attempts},
	})
	s.publish(ctx, user.ID.String(), kafka.NewEvent(kafka.EventAuthLoginFailed, kafka.LoginFailedPayload{
		Email:     user.Email,
		IPAddress: client.IPAddress,
		Attempts:  attempts,
	}))

	if lockedUntil != nil {
		s.audit.Record(domain.AuditEntry{
			UserID:    &user.ID,
			Action:    domain.AuditAccountLocked,
			Outcome:   domain.OutcomeFailure,
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
			Details:   map[string]any{"locked_until": *lockedUntil},
		})
		s.publish(ctx, user.ID.String(), kafka.NewEvent(kafka.EventAuthAccountLocked, kafka.AccountLockedPayload{
			UserID:      user.ID.String(),
			Email:       user.Email,
			LockedUntil: *lockedUntil,
		}))
		s.logger.WarnContext(ctx, "account locked after repeated failures",
			slog.String("user_id", user.ID.String()),
			slog.Int("attempts", attempts),
		)
	}

	return apperrors.Unauthorized("invalid email or password")
}

// Refresh rotates a refresh token for a new token pair. Every rejection
// surfaces as a uniform 401; the reason is only visible in the audit log.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client ClientContext) (*domain.TokenPair, error) {
	now := s.now().UTC()

	newValue, err := auth.NewRefreshToken()
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	newSession := &domain.Session{
		ID:        uuid.New(),
		TokenHash: auth.HashToken(newValue),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt: now,
	}

	old, err := s.sessions.Redeem(ctx, auth.HashToken(refreshToken), newSession)
	if err != nil {
		return nil, s.rejectRefresh(ctx, err, client)
	}

	user, err := s.users.GetByID(ctx, old.UserID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !user.IsActive {
		if _, err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to revoke sessions of inactive user",
				slog.String("error", err.Error()),
				slog.String("user_id", user.ID.String()),
			)
		}
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	accessToken, err := s.tokens.MintAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s.audit.Record(domain.AuditEntry{
		UserID:    &user.ID,
		Action:    domain.AuditTokenRefreshed,
		Outcome:   domain.OutcomeSuccess,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"old_session_id": old.ID, "new_session_id": newSession.ID},
	})

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newValue,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

func (s *AuthService) rejectRefresh(ctx context.Context, err error, client ClientContext) error {
	var reason string
	switch {
	case errors.Is(err, repository.ErrSessionUnknown):
		reason = "unknown"
	case errors.Is(err, repository.ErrSessionAlreadyUsed):
		reason = "already_used"
		s.logger.WarnContext(ctx, "refresh token reuse detected",
			slog.String("ip_address", client.IPAddress))
	case errors.Is(err, repository.ErrSessionRevoked):
		reason = "revoked"
	case errors.Is(err, repository.ErrSessionExpired):
		reason = "expired"
	default:
		return apperrors.Internal(err)
	}

	s.audit.Record(domain.AuditEntry{
		Action:    domain.AuditRefreshRejected,
		Outcome:   domain.OutcomeFailure,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"reason": reason},
	})

	return apperrors.Unauthorized("invalid refresh token")
}

// Logout revokes the session behind the given refresh token. Revoking an
// unknown or already-revoked token succeeds, so logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, client ClientContext) error {
	session, err := s.sessions.RevokeByTokenHash(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrSessionUnknown) {
			return nil
		}
		return apperrors.Internal(err)
	}

	s.audit.Record(domain.AuditEntry{
		UserID:    &session.UserID,
		Action:    domain.AuditLogout,
		Outcome:   domain.OutcomeSuccess,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"session_id": session.ID},
	})

	return nil
}

// LogoutAll revokes every active session of the subject, the "sign out
// everywhere" flow.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID, client ClientContext) error {
	revoked, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return apperrors.Internal(err)
	}

	s.audit.Record(domain.AuditEntry{
		UserID:    &userID,
		Action:    domain.AuditLogout,
		Outcome:   domain.OutcomeSuccess,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"scope": "all", "revoked": revoked},
	})

	return nil
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes every session so old refresh tokens stop working immediately.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, req domain.ChangePasswordRequest, client ClientContext) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Unauthorized("invalid credentials")
		}
		return apperrors.Internal(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return apperrors.Unauthorized("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Internal(fmt.Errorf("hash password: %w", err))
	}

	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return apperrors.Internal(err)
	}

	if _, err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke sessions after password change",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()),
		)
	}

	s.audit.Record(domain.AuditEntry{
		UserID:    &user.ID,
		Action:    domain.AuditPasswordChanged,
		Outcome:   domain.OutcomeSuccess,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	s.publish(ctx, user.ID.String(), kafka.NewEvent(kafka.EventAuthPasswordChanged, kafka.PasswordChangedPayload{
		UserID: user.ID.String(),
	}))

	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *domain.User, client ClientContext, now time.Time) (*domain.TokenPair, error) {
	accessToken, err := s.tokens.MintAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	refreshValue, err := auth.NewRefreshToken()
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	session := &domain.Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: auth.HashToken(refreshValue),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, apperrors.Internal(err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// publish sends a broker event without failing the calling operation.
func (s *AuthService) publish(ctx context.Context, key string, event kafka.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("error", err.Error()),
			slog.String("event_type", event.Type),
		)
	}
}
