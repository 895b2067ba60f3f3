// Package health provides HTTP liveness and readiness handlers for the debug
// server.
//
//   - /healthz reports process liveness and, when configured, a snapshot of
//     runtime info such as the current session state.
//   - /readyz runs every registered [Checker] and returns 200 only when all
//     of them pass.
//
// Responses are JSON with a top-level "status" of "ok" or "fail".
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds how long a single readiness check may run.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is usable and an error describing the problem otherwise.
type Checker struct {
	// Name labels the check in the JSON response (e.g. "transport",
	// "audio_sink").
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// InfoFunc supplies runtime key-value pairs included in the /healthz
// response, such as the session state or the configured model.
type InfoFunc func() map[string]string

// result is the JSON response body for both endpoints.
type result struct {
	Status string            `json:"status"`
	Info   map[string]string `json:"info,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the /healthz and /readyz endpoints. Safe for concurrent use;
// checkers and the info hook are fixed at construction time.
type Handler struct {
	checkers []Checker
	info     InfoFunc
}

// Option configures a Handler.
type Option func(*Handler)

// WithInfo sets the runtime info hook for /healthz.
func WithInfo(fn InfoFunc) Option {
	return func(h *Handler) { h.info = fn }
}

// New creates a [Handler] that evaluates the given checkers, in order, on
// each /readyz request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{checkers: make([]Checker, len(checkers))}
	copy(h.checkers, checkers)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Healthz is the liveness probe. A process that can serve HTTP is alive, so
// it always returns 200, plus the info snapshot when one is configured.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	res := result{Status: "ok"}
	if h.info != nil {
		res.Info = h.info()
	}
	writeJSON(w, http.StatusOK, res)
}

// Readyz is the readiness probe. Every checker runs with a [checkTimeout]
// deadline derived from the request context; one failure makes the whole
// response a 503.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
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
