// Package server implements the HTTP API that exposes plotline's retrieval,
// planning context and writing assistant to the book editor.
// The server is started by the `plotline serve` CLI command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/plotline-go/internal/cache"
	"github.com/54b3r/plotline-go/internal/logging"
)

// New constructs a Server from deps and cfg.
func New(deps *Deps, cfg *Config) (*Server, error) {
	if deps == nil || deps.Retrieval == nil {
		return nil, fmt.Errorf("server: retrieval service must not be nil")
	}
	if deps.Planning == nil || deps.Entities == nil {
		return nil, fmt.Errorf("server: planning source must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.SuggestTimeout == 0 {
		cfg.SuggestTimeout = 5 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.ReindexInterval == 0 {
		cfg.ReindexInterval = defaultReindexInterval
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	c := deps.Cache
	if c == nil {
		c = cache.Nop{}
	}

	s := &Server{
		retrieval: deps.Retrieval,
		planning:  deps.Planning,
		entities:  deps.Entities,
		cache:     c,
		agent:     deps.Agent,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		log.Warn("server: PLOTLINE_API_KEY not set, authentication disabled")
	}

	if cfg.APIKey == "" && cfg.ReadOnlyAPIKey != "" {
		log.Warn("server: read-only API key ignored without PLOTLINE_API_KEY")
	}

	query, stopQuery := newRateLimiter("query", scopeClientBook, cfg.RateLimit, cfg.RateBurst,
		s.metrics.rateLimitedTotal.WithLabelValues("query"))
	reindex, stopReindex := newRateLimiter("reindex", scopeBook, 1/cfg.ReindexInterval.Seconds(), 1,
		s.metrics.rateLimitedTotal.WithLabelValues("reindex"))
	s.stopRL = func() {
		stopQuery()
		stopReindex()
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.instrument(s.routes(query, reindex))),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes registers every endpoint on a fresh mux. Book routes require an API
// key; search and suggest draw from the per-client query buckets and reindex
// from the per-book bucket.
func (s *Server) routes(query, reindex *rateLimiter) *http.ServeMux {
	keys := authKeys{write: s.cfg.APIKey, read: s.cfg.ReadOnlyAPIKey}
	book := func(need access, rl *rateLimiter, h http.HandlerFunc) http.Handler {
		var next http.Handler = callerEmbedding(h)
		if rl != nil {
			next = rl.middleware(next)
		}
		return authMiddleware(keys, need, next)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	mux.Handle("GET /api/books/{bookID}/planning-context", book(accessRead, nil, s.handlePlanningContext))
	mux.Handle("GET /api/books/{bookID}/search", book(accessRead, query, s.handleSearch))
	mux.Handle("POST /api/books/{bookID}/reindex", book(accessWrite, reindex, s.handleReindex))
	mux.Handle("PUT /api/books/{bookID}/sources/{sourceType}/{sourceID}", book(accessWrite, nil, s.handlePutSource))
	mux.Handle("DELETE /api/books/{bookID}/sources/{sourceType}/{sourceID}", book(accessWrite, nil, s.handleDeleteSource))
	mux.Handle("POST /api/books/{bookID}/suggest", book(accessWrite, query, s.handleSuggest))
	return mux
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("plotline server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event data frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
}

// Write formats p as one or more SSE data lines and flushes to the client.
// Each newline in p is prefixed with "data: " so multi-line chunks never
// break the SSE frame boundary.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	chunk := strings.TrimRight(string(bytes.Clone(p)), "\n")
	lines := strings.Split(chunk, "\n")
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}
