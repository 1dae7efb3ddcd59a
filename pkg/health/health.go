package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health state of a component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Check is a named health probe for a single dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Response is the JSON body returned by the health endpoints.
type Response struct {
	Status Status            `json:"status"`
	Checks map[string]Status `json:"checks,omitempty"`
}

// Handler serves liveness and readiness probes. Liveness always reports up
// while the process is running. Readiness runs the registered dependency
// probes with a short timeout.
type Handler struct {
	mu     sync.RWMutex
	checks []Check
}

func NewHandler() *Handler {
	return &Handler{}
}

// Register adds a dependency probe to the readiness check.
func (h *Handler) Register(name string, probe func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, Check{Name: name, Probe: probe})
}

// Live handles liveness probes.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, http.StatusOK, Response{Status: StatusUp})
}

// Ready handles readiness probes by running all registered checks.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]Check, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	resp := Response{Status: StatusUp, Checks: make(map[string]Status, len(checks))}
	status := http.StatusOK

	for _, c := range checks {
		if err := c.Probe(ctx); err != nil {
			resp.Checks[c.Name] = StatusDown
			resp.Status = StatusDown
			status = http.StatusServiceUnavailable
		} else {
			resp.Checks[c.Name] = StatusUp
		}
	}

	writeResponse(w, status, resp)
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
