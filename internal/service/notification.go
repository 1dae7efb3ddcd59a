package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chris12pannapara-hub/client-portal/internal/domain"
	"github.com/chris12pannapara-hub/client-portal/internal/repository"
)

// NotificationService manages in-app notifications.
type NotificationService struct {
	notifications repository.NotificationRepository
	now           func() time.Time
}

func NewNotificationService(notifications repository.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications, now: time.Now}
}

// Notify creates a notification for the user.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, title, message string) error {
	return s.notifications.Create(ctx, &domain.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		CreatedAt: s.now().UTC(),
	})
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Notification, error) {
	return s.notifications.ListByUser(ctx, userID, limit, offset)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return s.notifications.MarkRead(ctx, id, userID)
}
