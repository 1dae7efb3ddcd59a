package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chris12pannapara-hub/client-portal/internal/domain"
)

// Refresh redemption failures. Redeem classifies every rejection so the
// service can treat reuse of a rotated token as a possible compromise while
// still collapsing everything to 401 at the boundary.
var (
	ErrSessionUnknown     = errors.New("refresh token is unknown")
	ErrSessionRevoked     = errors.New("session is revoked")
	ErrSessionAlreadyUsed = errors.New("refresh token was already used")
	ErrSessionExpired     = errors.New("session is expired")
)

// UserRepository persists portal accounts and their lockout state.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByIdentifier resolves a login identifier, matching either the
	// email or the username.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, firstName, lastName *string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	// UpdateLockout writes the failure counter and optional lock expiry
	// after a failed credential check.
	UpdateLockout(ctx context.Context, id uuid.UUID, attempts int, lockedUntil *time.Time) error

	// ResetLockout clears the failure counter and lock after a successful
	// login, recording the login time.
	ResetLockout(ctx context.Context, id uuid.UUID, lastLoginAt time.Time) error
}

// SessionRepository persists refresh-token sessions. Tokens are stored only
// as SHA-256 hashes.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error

	// Redeem atomically revokes the session matching tokenHash and inserts
	// newSession in its place, filling newSession.UserID from the old
	// record. It returns the old session on success. Failures are one of
	// ErrSessionUnknown, ErrSessionRevoked, ErrSessionAlreadyUsed, or
	// ErrSessionExpired; on any failure the old record is left untouched.
	// Two concurrent redemptions of the same hash yield exactly one
	// success.
	Redeem(ctx context.Context, tokenHash string, newSession *domain.Session) (*domain.Session, error)

	// RevokeByTokenHash marks the matching session revoked and returns it.
	// Revoking an already-revoked session is not an error.
	RevokeByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)

	// RevokeByID revokes one of the user's own sessions.
	RevokeByID(ctx context.Context, id, userID uuid.UUID) error

	// RevokeAllForUser revokes every active session of the user and
	// returns how many were revoked.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error)
}

// AuditFilter narrows audit log queries.
type AuditFilter struct {
	UserID *uuid.UUID
	Action string
	Limit  int
	Offset int
}

// AuditRepository is the append-only audit log. There is deliberately no
// update or delete operation.
type AuditRepository interface {
	Insert(ctx context.Context, entry *domain.AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditEntry, error)
}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
}
