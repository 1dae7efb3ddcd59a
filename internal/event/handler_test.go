package event

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris12pannapara-hub/client-portal/internal/domain"
	"github.com/chris12pannapara-hub/client-portal/internal/service"
	"github.com/chris12pannapara-hub/client-portal/pkg/kafka"
)

type capturingNotificationRepo struct {
	mu      sync.Mutex
	created []domain.Notification
}

func (r *capturingNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, *n)
	return nil
}

func (r *capturingNotificationRepo) ListByUser(context.Context, uuid.UUID, int, int) ([]domain.Notification, error) {
	return nil, nil
}

func (r *capturingNotificationRepo) MarkRead(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func newTestHandler() (*Handler, *capturingNotificationRepo) {
	repo := &capturingNotificationRepo{}
	svc := service.NewNotificationService(repo)
	return NewHandler(svc, slog.New(slog.NewJSONHandler(io.Discard, nil))), repo
}

// roundTrip simulates the broker: the payload struct becomes a generic map,
// the way the consumer sees it.
func roundTrip(t *testing.T, event kafka.Event) kafka.Event {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	var out kafka.Event
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHandle_LoginEventCreatesNotification(t *testing.T) {
	h, repo := newTestHandler()
	userID := uuid.New()

	event := roundTrip(t, kafka.NewEvent(kafka.EventAuthLogin, kafka.LoginPayload{
		UserID:    userID.String(),
		Email:     "jane@example.com",
		IPAddress: "203.0.113.10",
	}))

	require.NoError(t, h.Handle(context.Background(), event))
	require.Len(t, repo.created, 1)
	assert.Equal(t, userID, repo.created[0].UserID)
	assert.Equal(t, "New login detected", repo.created[0].Title)
	assert.Contains(t, repo.created[0].Message, "203.0.113.10")
}

func TestHandle_AccountLockedEvent(t *testing.T) {
	h, repo := newTestHandler()
	userID := uuid.New()

	event := roundTrip(t, kafka.NewEvent(kafka.EventAuthAccountLocked, kafka.AccountLockedPayload{
		UserID: userID.String(),
		Email:  "jane@example.com",
	}))

	require.NoError(t, h.Handle(context.Background(), event))
	require.Len(t, repo.created, 1)
	assert.Equal(t, "Account locked", repo.created[0].Title)
}

func TestHandle_UnknownEventTypeIsSkipped(t *testing.T) {
	h, repo := newTestHandler()

	event := roundTrip(t, kafka.NewEvent("auth.something_new", map[string]string{"k": "v"}))

	require.NoError(t, h.Handle(context.Background(), event))
	assert.Empty(t, repo.created)
}

func TestHandle_BadUserIDFails(t *testing.T) {
	h, _ := newTestHandler()

	event := roundTrip(t, kafka.NewEvent(kafka.EventAuthLogin, kafka.LoginPayload{
		UserID: "not-a-uuid",
	}))

	assert.Error(t, h.Handle(context.Background(), event))
}
