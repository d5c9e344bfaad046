package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/plotline-go/internal/cache"
	"github.com/54b3r/plotline-go/internal/embedder"
	"github.com/54b3r/plotline-go/internal/logging"
	"github.com/54b3r/plotline-go/internal/planning"
	"github.com/54b3r/plotline-go/internal/rag"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// handlePlanningContext handles GET /api/books/{bookID}/planning-context.
// The rendered blob is served from the cache when present.
func (s *Server) handlePlanningContext(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("bookID")
	blob, err := cache.GetOrBuild(r.Context(), s.cache, cache.PlanningKey(bookID), func(ctx context.Context) (string, error) {
		return s.planning.Build(ctx, bookID)
	})
	if err != nil {
		s.fail(w, r, "planning context failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, planningResponse{BookID: bookID, Context: blob})
}

// handleSearch handles GET /api/books/{bookID}/search?q=&limit=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("bookID")
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	limit := defaultSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSearchLimit {
			http.Error(w, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	results, err := s.retrieval.Search(r.Context(), bookID, q, limit)
	if err != nil {
		s.fail(w, r, "search failed", err)
		return
	}
	resp := searchResponse{Query: q, Results: make([]searchHit, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, hitFrom(res))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleReindex handles POST /api/books/{bookID}/reindex.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("bookID")
	report, err := s.retrieval.ReindexCollection(r.Context(), bookID)
	if err != nil {
		s.fail(w, r, "reindex failed", err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// handlePutSource handles PUT /api/books/{bookID}/sources/{sourceType}/{sourceID}.
// The entity is reloaded from the database and its chunks replaced.
func (s *Server) handlePutSource(w http.ResponseWriter, r *http.Request) {
	bookID, c, id, ok := sourcePath(w, r)
	if !ok {
		return
	}
	e, err := s.entities.Entity(r.Context(), bookID, c, id)
	if err != nil {
		s.fail(w, r, "load entity failed", err)
		return
	}
	n, err := s.retrieval.UpdateSourceEmbeddings(r.Context(), bookID, e)
	if err != nil {
		s.fail(w, r, "update embeddings failed", err)
		return
	}
	s.invalidate(r.Context(), bookID)
	writeJSON(w, r, http.StatusOK, sourceResponse{SourceType: string(c), SourceID: id, Chunks: n})
}

// handleDeleteSource handles DELETE /api/books/{bookID}/sources/{sourceType}/{sourceID}.
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	bookID, c, id, ok := sourcePath(w, r)
	if !ok {
		return
	}
	if err := s.retrieval.DeleteSource(r.Context(), bookID, c, id); err != nil {
		s.fail(w, r, "delete source failed", err)
		return
	}
	s.invalidate(r.Context(), bookID)
	w.WriteHeader(http.StatusNoContent)
}

// handleSuggest handles POST /api/books/{bookID}/suggest. It streams the
// assistant's response using Server-Sent Events so the editor can render
// tokens as they arrive.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		http.Error(w, "writing assistant not configured", http.StatusServiceUnavailable)
		return
	}
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		http.Error(w, "instruction is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.metrics.suggestActiveStreams.Inc()
	defer s.metrics.suggestActiveStreams.Dec()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SuggestTimeout)
	defer cancel()

	start := time.Now()
	err := s.agent.Suggest(ctx, r.PathValue("bookID"), req.Instruction, &sseWriter{w: w, flusher: flusher})
	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	s.metrics.suggestRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.suggestDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		logging.FromContext(r.Context()).Error("suggest failed", slog.Any("error", err))
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", strings.ReplaceAll(err.Error(), "\n", " "))
		flusher.Flush()
		return
	}
	// Signal stream completion.
	fmt.Fprintf(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}

// sourcePath parses the book, category and id of a sources route. It writes
// a 400 and returns false when the source type is unknown.
func sourcePath(w http.ResponseWriter, r *http.Request) (string, planning.Category, string, bool) {
	c, err := planning.ParseCategory(r.PathValue("sourceType"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", "", "", false
	}
	return r.PathValue("bookID"), c, r.PathValue("sourceID"), true
}

// invalidate drops the cached planning context of bookID. Failures are logged.
func (s *Server) invalidate(ctx context.Context, bookID string) {
	if err := s.cache.Delete(ctx, cache.PlanningKey(bookID)); err != nil {
		logging.FromContext(ctx).Warn("cache invalidation failed",
			slog.String("book_id", bookID),
			slog.Any("error", err),
		)
	}
}

// fail logs err and writes the status that matches it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(msg, slog.Int("status", status), slog.Any("error", err))
	} else {
		log.Warn(msg, slog.Int("status", status), slog.Any("error", err))
	}
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), status)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, planning.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, embedder.ErrNoProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, embedder.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, embedder.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func hitFrom(r rag.SearchResult) searchHit {
	return searchHit{
		ChunkID:    r.ChunkID,
		SourceType: string(r.SourceType),
		SourceID:   r.SourceID,
		ChunkIndex: r.ChunkIndex,
		Content:    r.Content,
		Metadata:   r.Metadata,
		Score:      r.Score,
	}
}
