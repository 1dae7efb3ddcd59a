package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit action names recorded in the audit log.
const (
	AuditLoginSuccess    = "login_success"
	AuditLoginFailed     = "login_failed"
	AuditAccountLocked   = "account_locked"
	AuditTokenRefreshed  = "token_refreshed"
	AuditRefreshRejected = "refresh_rejected"
	AuditLogout          = "logout"
	AuditPasswordChanged = "password_changed"
	AuditSessionRevoked  = "session_revoked"
	AuditProfileUpdated  = "profile_updated"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// AuditEntry is one append-only row in the audit log. UserID is nil for
// events that could not be attributed to an account, such as a failed login
// against an unknown email.
type AuditEntry struct {
	ID        uuid.UUID      `json:"id"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	Action    string         `json:"action"`
	Outcome   string         `json:"outcome"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
