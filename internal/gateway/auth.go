package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/chris12pannapara-hub/client-portal/internal/auth"
)

// Headers the gateway injects for the upstream after verifying the token.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// publicPrefixes are forwarded without token verification. The auth
// endpoints must stay reachable for clients that hold no valid token yet.
var publicPrefixes = []string{
	"/api/v1/auth/",
	"/healthz",
	"/readyz",
}

// AuthMiddleware verifies access tokens at the edge. Verification is pure:
// signature and expiry only, no session store lookup, so the gateway scales
// without a database dependency. All failures collapse into one 401 body.
func AuthMiddleware(tokens *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// Strip any client-supplied identity headers so the upstream
			// only ever sees values the gateway set itself.
			r.Header.Del(HeaderUserID)
			r.Header.Del(HeaderUserRole)

			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeUnauthorized(w)
				return
			}

			claims, err := tokens.VerifyAccessToken(parts[1])
			if err != nil {
				writeUnauthorized(w)
				return
			}

			r.Header.Set(HeaderUserID, claims.Subject)
			r.Header.Set(HeaderUserRole, claims.Role)
			next.ServeHTTP(w, r)
		})
	}
}

func isPublicPath(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    "UNAUTHORIZED",
			"message": "invalid or expired token",
		},
	})
}
