package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chris12pannapara-hub/client-portal/pkg/errors"
)

var userCols = []string{
	"id", "email", "username", "password_hash", "first_name", "last_name", "role",
	"is_active", "failed_login_attempts", "locked_until", "last_login_at", "created_at", "updated_at",
}

func newUserRepo(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewUserRepository(mock), mock
}

func userRow(id uuid.UUID, email string) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows(userCols).AddRow(
		id, email, "jdoe", "$2a$10$hash", "Jane", "Doe", "user",
		true, 0, nil, nil, now, now,
	)
}

func TestUserRepository_GetByIdentifier(t *testing.T) {
	repo, mock := newUserRepo(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email = \\$1 OR username = \\$1").
		WithArgs("jane@example.com").
		WillReturnRows(userRow(id, "jane@example.com"))

	user, err := repo.GetByIdentifier(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByIdentifier_Username(t *testing.T) {
	repo, mock := newUserRepo(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email = \\$1 OR username = \\$1").
		WithArgs("jdoe").
		WillReturnRows(userRow(id, "jane@example.com"))

	user, err := repo.GetByIdentifier(context.Background(), "jdoe")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", user.Username)
}

func TestUserRepository_GetByIdentifier_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email = \\$1 OR username = \\$1").
		WithArgs("missing@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByIdentifier(context.Background(), "missing@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_GetByID(t *testing.T) {
	repo, mock := newUserRepo(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs(id).
		WillReturnRows(userRow(id, "jane@example.com"))

	user, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
}

func TestUserRepository_UpdateLockout(t *testing.T) {
	repo, mock := newUserRepo(t)
	id := uuid.New()
	lockedUntil := time.Now().Add(15 * time.Minute)

	mock.ExpectExec("UPDATE users").
		WithArgs(id, 5, &lockedUntil).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.UpdateLockout(context.Background(), id, 5, &lockedUntil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ResetLockout(t *testing.T) {
	repo, mock := newUserRepo(t)
	id := uuid.New()
	loginAt := time.Now().UTC()

	mock.ExpectExec("UPDATE users").
		WithArgs(id, loginAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ResetLockout(context.Background(), id, loginAt)
	require.NoError(t, err)
}

func TestUserRepository_UpdatePassword_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE users").
		WithArgs(id, "$2a$10$newhash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdatePassword(context.Background(), id, "$2a$10$newhash")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_UpdateProfile(t *testing.T) {
	repo, mock := newUserRepo(t)
	id := uuid.New()
	first := "Janet"

	mock.ExpectQuery("UPDATE users").
		WithArgs(id, &first, (*string)(nil)).
		WillReturnRows(userRow(id, "jane@example.com"))

	user, err := repo.UpdateProfile(context.Background(), id, &first, nil)
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
}
