// Package health provides the HTTP liveness and readiness probes for the
// earshot server.
//
// Two endpoints are exposed:
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker. The
// built-in checkers cover the two dependencies a transcription session
// cannot run without: a writable recordings directory
// ([RecordingsDirCheck]) and, when configured, a reachable archive
// database ([ArchiveCheck]).
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// checkTimeout bounds each individual readiness check.
const checkTimeout = 5 * time.Second

// Checker is one named readiness check. Check returns nil while the
// dependency is usable and an error describing the problem otherwise.
type Checker struct {
	// Name is a short label for this check ("recordings-dir", "archive").
	// It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// RecordingsDirCheck reports whether the utterance recordings directory is
// writable. The probe creates and removes a marker file so permission and
// disk problems surface in /readyz before the first utterance hits them.
func RecordingsDirCheck(dir string) Checker {
	return Checker{
		Name: "recordings-dir",
		Check: func(_ context.Context) error {
			f, err := os.CreateTemp(dir, ".readyz-*")
			if err != nil {
				return fmt.Errorf("recordings dir not writable: %w", err)
			}
			name := f.Name()
			if err := f.Close(); err != nil {
				return err
			}
			return os.Remove(name)
		},
	}
}

// Pinger is the slice of the archive store the readiness probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ArchiveCheck reports whether the transcript archive is reachable.
func ArchiveCheck(store Pinger) Checker {
	return Checker{Name: "archive", Check: store.Ping}
}

// result is the JSON body of both probe responses.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the liveness and readiness probes. The checker list is
// fixed at construction, so a Handler needs no locking.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] over the given checkers. /readyz runs them
// sequentially, in the order given here.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz answers the liveness probe. Being able to serve the request is
// the whole check, so it always returns 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz answers the readiness probe: 200 when every checker passes, 503
// with per-check failure text otherwise. Each checker runs under a
// [checkTimeout] deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		if err := h.runCheck(r.Context(), c); err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			res.Checks[c.Name] = "ok"
		}
	}

	writeJSON(w, status, res)
}

// runCheck applies the per-check deadline so one stuck dependency cannot
// hold /readyz open past the probe's own timeout.
func (h *Handler) runCheck(ctx context.Context, c Checker) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return c.Check(ctx)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON sends v with the given status code. The bodies here are tiny
// fixed structs, so a marshal failure is a programming error; it degrades
// to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
