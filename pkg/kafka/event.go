package kafka

import (
	"time"

	"github.com/google/uuid"
)

// Event types published on the auth topic.
const (
	EventAuthLogin           = "auth.login"
	EventAuthLoginFailed     = "auth.login_failed"
	EventAuthAccountLocked   = "auth.account_locked"
	EventAuthPasswordChanged = "auth.password_changed"
	EventAuthSessionRevoked  = "auth.session_revoked"
)

// Topic names.
const (
	TopicAuth = "portal.auth"
)

// Event is the envelope for all messages published to Kafka.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent creates an event envelope with a fresh ID and timestamp.
func NewEvent(eventType string, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// LoginPayload is published on each successful login.
type LoginPayload struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// LoginFailedPayload is published on each failed login attempt.
type LoginFailedPayload struct {
	Email     string `json:"email"`
	IPAddress string `json:"ip_address,omitempty"`
	Attempts  int    `json:"attempts"`
}

// AccountLockedPayload is published when a lockout begins.
type AccountLockedPayload struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	LockedUntil time.Time `json:"locked_until"`
}

// PasswordChangedPayload is published after a successful password change.
type PasswordChangedPayload struct {
	UserID string `json:"user_id"`
}

// SessionRevokedPayload is published when a session is revoked out of band.
type SessionRevokedPayload struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}
