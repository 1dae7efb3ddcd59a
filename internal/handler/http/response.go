package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/chris12pannapara-hub/client-portal/internal/service"
	apperrors "github.com/chris12pannapara-hub/client-portal/pkg/errors"
	"github.com/chris12pannapara-hub/client-portal/pkg/validator"
)

type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		writeErrorBody(w, http.StatusBadRequest, &errorBody{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  validationErr.Fields(),
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeErrorBody(w, appErr.Status, &errorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	body := &errorBody{Code: "INTERNAL_ERROR", Message: "an internal error occurred"}
	if status != http.StatusInternalServerError {
		body = &errorBody{Code: http.StatusText(status), Message: err.Error()}
	}
	writeErrorBody(w, status, body)
}

func writeErrorBody(w http.ResponseWriter, status int, body *errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: body}); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeAndValidate decodes the JSON body into dst and runs struct
// validation, writing the error response itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperrors.InvalidInput("invalid request body"))
		return false
	}
	if err := validator.Validate(dst); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

// clientContext extracts caller metadata for audit entries and sessions.
// The first X-Forwarded-For hop wins when the gateway sets it.
func clientContext(r *http.Request) service.ClientContext {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		if idx := strings.IndexByte(ip, ','); idx >= 0 {
			ip = ip[:idx]
		}
		ip = strings.TrimSpace(ip)
	} else {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip = host
	}

	return service.ClientContext{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
