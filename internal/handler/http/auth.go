package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/chris12pannapara-hub/client-portal/internal/domain"
	"github.com/chris12pannapara-hub/client-portal/internal/service"
	apperrors "github.com/chris12pannapara-hub/client-portal/pkg/errors"
	"github.com/chris12pannapara-hub/client-portal/pkg/middleware"
)

// AuthHandler serves the authentication endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginResponse struct {
	User   *domain.User      `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, user, err := h.auth.Login(r.Context(), req, clientContext(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{User: user, Tokens: pair})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken, clientContext(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Logout handles POST /api/v1/auth/logout. With a refresh token in the body
// it revokes that one session; with an empty body it revokes every session
// of the authenticated subject.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req domain.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperrors.InvalidInput("invalid request body"))
		return
	}

	if req.RefreshToken == "" {
		err = h.auth.LogoutAll(r.Context(), userID, clientContext(r))
	} else {
		err = h.auth.Logout(r.Context(), req.RefreshToken, clientContext(r))
	}
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /api/v1/users/me/change-password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req domain.ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.auth.ChangePassword(r.Context(), userID, req, clientContext(r)); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func authenticatedUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, apperrors.Unauthorized("missing authentication")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.Unauthorized("invalid authentication")
	}
	return id, nil
}
