// Package event consumes portal auth events from Kafka and materializes
// in-app notifications for the affected users.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chris12pannapara-hub/client-portal/internal/service"
	"github.com/chris12pannapara-hub/client-portal/pkg/kafka"
)

// Handler reacts to auth events.
type Handler struct {
	notifications *service.NotificationService
	logger        *slog.Logger
}

func NewHandler(notifications *service.NotificationService, logger *slog.Logger) *Handler {
	return &Handler{notifications: notifications, logger: logger}
}

// Handle dispatches one consumed event. Unrecognized event types are
// skipped, not errors, so new producers can roll out first.
func (h *Handler) Handle(ctx context.Context, event kafka.Event) error {
	switch event.Type {
	case kafka.EventAuthLogin:
		var p kafka.LoginPayload
		if err := decodePayload(event.Payload, &p); err != nil {
			return err
		}
		return h.notify(ctx, p.UserID, "New login detected",
			fmt.Sprintf("Your account was signed in from %s.", originOrUnknown(p.IPAddress)))

	case kafka.EventAuthAccountLocked:
		var p kafka.AccountLockedPayload
		if err := decodePayload(event.Payload, &p); err != nil {
			return err
		}
		return h.notify(ctx, p.UserID, "Account locked",
			"Your account was locked after repeated failed login attempts.")

	case kafka.EventAuthPasswordChanged:
		var p kafka.PasswordChangedPayload
		if err := decodePayload(event.Payload, &p); err != nil {
			return err
		}
		return h.notify(ctx, p.UserID, "Password changed",
			"Your password was changed. All other sessions were signed out.")

	default:
		h.logger.DebugContext(ctx, "skipping event",
			slog.String("event_type", event.Type))
		return nil
	}
}

func (h *Handler) notify(ctx context.Context, rawUserID, title, message string) error {
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return fmt.Errorf("parse user id %q: %w", rawUserID, err)
	}
	return h.notifications.Notify(ctx, userID, title, message)
}

func originOrUnknown(ip string) string {
	if ip == "" {
		return "an unknown address"
	}
	return ip
}

// decodePayload converts the generic event payload back into its typed
// form. Consumed payloads arrive as map[string]any after JSON decoding.
func decodePayload(payload any, dst any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
