package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chris12pannapara-hub/client-portal/internal/domain"
	"github.com/chris12pannapara-hub/client-portal/internal/repository"
)

// Revocation reasons stored alongside revoked_at. Redemption classifies a
// dead token by this value: a rotated token was already used, anything else
// was revoked out of band.
const (
	revokeReasonRotated = "rotated"
	revokeReasonLogout  = "logout"
	revokeReasonRevoked = "revoked"
)

// SessionRepository implements repository.SessionRepository on Postgres.
type SessionRepository struct {
	db  DB
	now func() time.Time
}

func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token_hash, ip_address, user_agent, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		s.ID, s.UserID, s.TokenHash, s.IPAddress, s.UserAgent, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create session: token hash collision: %w", err)
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Redeem rotates a refresh token in one transaction. The conditional UPDATE
// serializes concurrent redemptions of the same hash at the row level: the
// loser blocks until the winner commits, then matches zero rows and is
// classified as a dead token. The expiry check rolls back so a failed
// redemption never leaves the old record revoked.
func (r *SessionRepository) Redeem(ctx context.Context, tokenHash string, newSession *domain.Session) (*domain.Session, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin redeem: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := r.now().UTC()

	revokeQuery := `
		UPDATE sessions
		SET revoked_at = $2, revoked_reason = $3, last_used_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL
		RETURNING id, user_id, ip_address, user_agent, expires_at, created_at`

	old := &domain.Session{TokenHash: tokenHash, RevokedAt: &now}
	err = tx.QueryRow(ctx, revokeQuery, tokenHash, now, revokeReasonRotated).Scan(
		&old.ID, &old.UserID, &old.IPAddress, &old.UserAgent, &old.ExpiresAt, &old.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyDeadToken(ctx, tokenHash)
		}
		return nil, fmt.Errorf("revoke old session: %w", err)
	}

	if now.After(old.ExpiresAt) {
		// Rollback via the deferred call leaves the old record untouched.
		return nil, repository.ErrSessionExpired
	}

	newSession.UserID = old.UserID

	insertQuery := `
		INSERT INTO sessions (id, user_id, token_hash, ip_address, user_agent, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := tx.Exec(ctx, insertQuery,
		newSession.ID, newSession.UserID, newSession.TokenHash,
		newSession.IPAddress, newSession.UserAgent, newSession.ExpiresAt, newSession.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert rotated session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit redeem: %w", err)
	}

	return old, nil
}

// classifyDeadToken distinguishes why a token could not be redeemed. It runs
// on the pool rather than the transaction so the classification reflects
// committed state.
func (r *SessionRepository) classifyDeadToken(ctx context.Context, tokenHash string) error {
	var reason *string
	err := r.db.QueryRow(ctx,
		`SELECT revoked_reason FROM sessions WHERE token_hash = $1`, tokenHash,
	).Scan(&reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrSessionUnknown
		}
		return fmt.Errorf("classify dead token: %w", err)
	}

	if reason != nil && *reason == revokeReasonRotated {
		return repository.ErrSessionAlreadyUsed
	}
	return repository.ErrSessionRevoked
}

func (r *SessionRepository) RevokeByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	now := r.now().UTC()

	query := `
		UPDATE sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revoked_reason = COALESCE(revoked_reason, $3)
		WHERE token_hash = $1
		RETURNING id, user_id, ip_address, user_agent, expires_at, revoked_at, created_at, last_used_at`

	s := &domain.Session{TokenHash: tokenHash}
	err := r.db.QueryRow(ctx, query, tokenHash, now, revokeReasonLogout).Scan(
		&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent,
		&s.ExpiresAt, &s.RevokedAt, &s.CreatedAt, &s.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrSessionUnknown
		}
		return nil, fmt.Errorf("revoke session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) RevokeByID(ctx context.Context, id, userID uuid.UUID) error {
	now := r.now().UTC()

	query := `
		UPDATE sessions
		SET revoked_at = COALESCE(revoked_at, $3),
		    revoked_reason = COALESCE(revoked_reason, $4)
		WHERE id = $1 AND user_id = $2`

	tag, err := r.db.Exec(ctx, query, id, userID, now, revokeReasonRevoked)
	if err != nil {
		return fmt.Errorf("revoke session by id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrSessionUnknown
	}
	return nil
}

func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	now := r.now().UTC()

	query := `
		UPDATE sessions
		SET revoked_at = $2, revoked_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL`

	tag, err := r.db.Exec(ctx, query, userID, now, revokeReasonRevoked)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	query := `
		SELECT id, user_id, ip_address, user_agent, expires_at, created_at, last_used_at
		FROM sessions
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent,
			&s.ExpiresAt, &s.CreatedAt, &s.LastUsedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
