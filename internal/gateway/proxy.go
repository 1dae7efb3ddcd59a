package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// NewProxy builds a reverse proxy to the portal service. The gateway adds
// the client address to X-Forwarded-For so audit entries record the real
// origin.
func NewProxy(upstreamURL string, logger *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.ErrorContext(r.Context(), "upstream request failed",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"code":"UPSTREAM_UNAVAILABLE","message":"service temporarily unavailable"}}`))
	}

	return proxy, nil
}
