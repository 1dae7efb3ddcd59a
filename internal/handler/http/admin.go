package http

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/chris12pannapara-hub/client-portal/internal/domain"
	"github.com/chris12pannapara-hub/client-portal/internal/repository"
	apperrors "github.com/chris12pannapara-hub/client-portal/pkg/errors"
)

// AdminHandler serves administrative read endpoints. Route-level role checks
// keep it admin-only.
type AdminHandler struct {
	audit repository.AuditRepository
}

func NewAdminHandler(audit repository.AuditRepository) *AdminHandler {
	return &AdminHandler{audit: audit}
}

// ListAuditLog handles GET /api/v1/admin/audit-log.
func (h *AdminHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.AuditFilter{
		Action: q.Get("action"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	if raw := q.Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, apperrors.InvalidInput("invalid user_id filter"))
			return
		}
		filter.UserID = &id
	}

	entries, err := h.audit.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}
