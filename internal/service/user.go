package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chris12pannapara-hub/client-portal/internal/domain"
	"github.com/chris12pannapara-hub/client-portal/internal/repository"
	apperrors "github.com/chris12pannapara-hub/client-portal/pkg/errors"
	"github.com/chris12pannapara-hub/client-portal/pkg/kafka"
)

// UserService serves profile and session management for authenticated users.
type UserService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	audit    AuditRecorder
	events   EventPublisher
	logger   *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	auditRec AuditRecorder,
	events EventPublisher,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		sessions: sessions,
		audit:    auditRec,
		events:   events,
		logger:   logger,
	}
}

func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req domain.UpdateProfileRequest, client ClientContext) (*domain.User, error) {
	user, err := s.users.UpdateProfile(ctx, userID, req.FirstName, req.LastName)
	if err != nil {
		return nil, err
	}

	s.audit.Record(domain.AuditEntry{
		UserID:    &user.ID,
		Action:    domain.AuditProfileUpdated,
		Outcome:   domain.OutcomeSuccess,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})

	return user, nil
}

// ListSessions returns the user's active sessions, newest first.
func (s *UserService) ListSessions(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	return s.sessions.ListActiveByUser(ctx, userID)
}

// RevokeSession revokes one of the user's own sessions out of band, for a
// "sign out that device" flow.
func (s *UserService) RevokeSession(ctx context.Context, sessionID, userID uuid.UUID, client ClientContext) error {
	if err := s.sessions.RevokeByID(ctx, sessionID, userID); err != nil {
		if errors.Is(err, repository.ErrSessionUnknown) {
			return apperrors.NotFound("session")
		}
		return apperrors.Internal(err)
	}

	s.audit.Record(domain.AuditEntry{
		UserID:    &userID,
		Action:    domain.AuditSessionRevoked,
		Outcome:   domain.OutcomeSuccess,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"session_id": sessionID},
	})

	if s.events != nil {
		if err := s.events.Publish(ctx, userID.String(), kafka.NewEvent(kafka.EventAuthSessionRevoked, kafka.SessionRevokedPayload{
			UserID:    userID.String(),
			SessionID: sessionID.String(),
		})); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish event",
				slog.String("error", err.Error()),
				slog.String("event_type", kafka.EventAuthSessionRevoked),
			)
		}
	}

	return nil
}
