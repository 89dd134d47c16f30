// Package health serves liveness and readiness probes.
//
//   - /healthz: liveness; a process that can answer HTTP is alive.
//   - /readyz: readiness; 200 only when every registered check passes.
//
// Responses are JSON with a top-level "status" ("ok" or "fail") and a
// per-check "checks" map.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is healthy and must respect context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Pinger is anything with a context-aware Ping, such as the catalog store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker wraps a Pinger as a named Checker.
func PingChecker(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler evaluates a fixed checker list per /readyz request. Safe for
// concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a Handler over the given checkers, evaluated sequentially in
// order.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz answers 200 only when every checker passes; otherwise 503 with the
// failing checks named in the body.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	status := http.StatusOK
	res := result{Status: "ok", Checks: checks}

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
