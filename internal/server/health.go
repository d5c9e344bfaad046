package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/plotline-go/internal/logging"
)

// probeTimeout is the maximum time allowed for each individual dependency
// probe during a readiness check. Kept short so /api/ready responds quickly
// even when a dependency is slow rather than unreachable.
const probeTimeout = 5 * time.Second

// Pinger is the interface implemented by any dependency that can report its
// own reachability. Each implementation must return nil when the dependency
// is healthy and a descriptive error otherwise.
// Implementations must be safe to call from multiple goroutines.
type Pinger interface {
	// Ping checks whether the dependency is reachable within the given context.
	// Returns nil on success, a descriptive error on failure.
	Ping(ctx context.Context) error

	// Name returns a short human-readable label used in readiness responses
	// (e.g. "database", "qdrant").
	Name() string
}

// readyCheck holds the per-dependency result of a readiness probe.
type readyCheck struct {
	// Name is the dependency label (e.g. "database", "qdrant").
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// LatencyMS is how long the probe took.
	LatencyMS int64 `json:"latencyMs"`
	// Error contains the failure reason when OK is false. Empty on success.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency probe succeeded.
	Ready bool `json:"ready"`
	// Checks holds one result per Pinger, in registration order.
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. Probes run concurrently, each under
// probeTimeout, so the response takes as long as the slowest dependency
// rather than the sum. Any failed probe makes the response 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var g errgroup.Group
	for i, p := range s.pingers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()

			start := time.Now()
			err := p.Ping(ctx)
			checks[i] = readyCheck{Name: p.Name(), OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				checks[i].Error = err.Error()
				log.Warn("readiness probe failed",
					slog.String("dependency", p.Name()),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
