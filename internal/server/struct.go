package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/plotline-go/internal/cache"
	"github.com/54b3r/plotline-go/internal/planning"
	"github.com/54b3r/plotline-go/internal/rag"
	"github.com/54b3r/plotline-go/internal/retrieval"
	"github.com/54b3r/plotline-go/internal/tools"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// SuggestTimeout bounds a single /suggest stream. Defaults to 5 minutes.
	SuggestTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained search and suggest rate per client and book
	// (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the search and suggest burst per client and book.
	// Defaults to 20 if zero.
	RateBurst int
	// ReindexInterval is the minimum spacing between reindexes of one book,
	// shared by all clients. Defaults to 30 seconds.
	ReindexInterval time.Duration
	// APIKey is the Bearer token granting full access to /api/books routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// ReadOnlyAPIKey, when set, is accepted on the GET book routes only.
	ReadOnlyAPIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Deps are the domain services the handlers call.
type Deps struct {
	// Retrieval indexes and searches book content. Required.
	Retrieval indexer
	// Planning renders the planning context. Required.
	Planning tools.PlanningSource
	// Entities loads a single planning entity for incremental reindexing. Required.
	Entities tools.EntityGetter
	// Cache holds rendered planning contexts. Defaults to cache.Nop.
	Cache cache.Cache
	// Agent streams writing suggestions. Nil disables /suggest.
	Agent suggester
}

// indexer is the retrieval surface used by the book handlers.
// *retrieval.Service satisfies it; tests inject a fake.
type indexer interface {
	ReindexCollection(ctx context.Context, bookID string) (retrieval.ReindexReport, error)
	UpdateSourceEmbeddings(ctx context.Context, bookID string, e planning.Entity) (int, error)
	DeleteSource(ctx context.Context, bookID string, c planning.Category, id string) error
	Search(ctx context.Context, bookID, query string, limit int) ([]rag.SearchResult, error)
}

// suggester streams a writing suggestion to w.
// *agent.WritingAgent satisfies it.
type suggester interface {
	Suggest(ctx context.Context, bookID, instruction string, w io.Writer) error
}

// Server is the plotline HTTP API.
type Server struct {
	retrieval indexer
	planning  tools.PlanningSource
	entities  tools.EntityGetter
	cache     cache.Cache
	agent     suggester

	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors for this server.
	metrics *serverMetrics
	// stopRL stops the rate limiters' eviction goroutines on shutdown.
	stopRL func()
}

// suggestRequest is the JSON body for POST /api/books/{bookID}/suggest.
type suggestRequest struct {
	// Instruction is the author's request to the writing assistant.
	Instruction string `json:"instruction"`
}

// planningResponse is the JSON body for GET /api/books/{bookID}/planning-context.
type planningResponse struct {
	BookID  string `json:"bookId"`
	Context string `json:"context"`
}

// searchHit is one result of GET /api/books/{bookID}/search.
type searchHit struct {
	ChunkID    string            `json:"chunkId"`
	SourceType string            `json:"sourceType"`
	SourceID   string            `json:"sourceId"`
	ChunkIndex int               `json:"chunkIndex"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Score      float32           `json:"score"`
}

// searchResponse is the JSON body for GET /api/books/{bookID}/search.
type searchResponse struct {
	Query   string      `json:"query"`
	Results []searchHit `json:"results"`
}

// sourceResponse is the JSON body for PUT /api/books/{bookID}/sources/....
type sourceResponse struct {
	SourceType string `json:"sourceType"`
	SourceID   string `json:"sourceId"`
	Chunks     int    `json:"chunks"`
}
