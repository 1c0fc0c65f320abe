// Package health serves liveness and readiness endpoints on the
// engine's metrics listener.
//
//   - /healthz — liveness; always returns 200 while the process serves
//     HTTP.
//   - /readyz  — readiness; returns 200 only when every registered
//     [Checker] passes. The app registers checks for the replay
//     directory and the LLM backend.
//
// Responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map holding each named checker's outcome.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is one named readiness check. Check returns nil while the
// dependency is healthy and an error describing the failure otherwise.
type Checker struct {
	// Name keys this check in the JSON response (e.g. "replay_dir",
	// "llm").
	Name string

	// Check probes the dependency. It must respect context
	// cancellation.
	Check func(ctx context.Context) error
}

// report is the JSON body of both endpoints.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the /healthz and /readyz endpoints. The checker list
// is fixed at construction time; Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates checkers sequentially, in the
// order given, on each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always returns 200. A process that can serve HTTP is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz returns 200 only when every registered [Checker] passes. Each
// check runs under a [checkTimeout] deadline derived from the request
// context.
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

	res := report{
		Status: "ok",
		Checks: checks,
	}
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

// writeJSON encodes v with the given status code, degrading to a
// plain-text 500 when encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
