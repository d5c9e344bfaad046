// Package retrieval ties the chunker, the embedding adapter and the chunk
// store together: it turns planning entities into embedded chunks and answers
// similarity queries for a book.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/plotline-go/internal/chunker"
	"github.com/54b3r/plotline-go/internal/embedder"
	"github.com/54b3r/plotline-go/internal/logging"
	"github.com/54b3r/plotline-go/internal/planning"
	"github.com/54b3r/plotline-go/internal/rag"
)

// DefaultConcurrency is the number of entities reindexed in parallel.
const DefaultConcurrency = 4

// EntityLister lists every current planning entity of a book.
type EntityLister interface {
	Entities(ctx context.Context, bookID string) ([]planning.Entity, error)
}

// Config holds the dependencies of a Service.
type Config struct {
	// Store persists chunks. Required.
	Store *rag.ChunkStore

	// Embedder embeds chunk text and queries. Required.
	Embedder rag.Embedder

	// Chunker splits entity text. Defaults to chunker.New(nil).
	Chunker *chunker.Chunker

	// Entities lists a book's entities for full reindex. Required by
	// ReindexCollection only.
	Entities EntityLister

	// Concurrency bounds parallel entity upserts during reindex.
	// Defaults to DefaultConcurrency.
	Concurrency int

	// MetricsRegistry receives the service's collectors. Nil leaves them
	// unregistered.
	MetricsRegistry prometheus.Registerer
}

// ReindexReport summarises a best-effort reindex.
type ReindexReport struct {
	// Entities is the number of entities listed for the book.
	Entities int `json:"entities"`
	// Indexed is the number of entities whose chunks were written.
	Indexed int `json:"indexed"`
	// Skipped is the number of entities with an empty representation.
	Skipped int `json:"skipped"`
	// Failed is the number of entities whose upsert failed.
	Failed int `json:"failed"`
	// Chunks is the total number of chunks written.
	Chunks int `json:"chunks"`
}

// Service is the unified retrieval service.
type Service struct {
	store       *rag.ChunkStore
	emb         rag.Embedder
	chunker     *chunker.Chunker
	entities    EntityLister
	concurrency int
	metrics     *serviceMetrics
}

// New validates cfg and returns a Service.
func New(cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("retrieval: chunk store is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder is required")
	}
	ch := cfg.Chunker
	if ch == nil {
		ch = chunker.New(nil)
	}
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}
	return &Service{
		store:       cfg.Store,
		emb:         cfg.Embedder,
		chunker:     ch,
		entities:    cfg.Entities,
		concurrency: conc,
		metrics:     newServiceMetrics(cfg.MetricsRegistry),
	}, nil
}

// ReindexCollection rebuilds every chunk of bookID. It clears the book's
// chunks, then upserts each entity independently: an entity that fails is
// logged and counted, and the rest carry on. It returns an error when the
// entities cannot be listed, the book cannot be cleared, or no embedding
// provider is configured; in the last case the report covers the entities
// handled before the abort.
func (s *Service) ReindexCollection(ctx context.Context, bookID string) (ReindexReport, error) {
	var report ReindexReport
	if s.entities == nil {
		return report, fmt.Errorf("retrieval: reindex: no entity lister configured")
	}
	log := logging.FromContext(ctx).With("book_id", bookID)
	start := time.Now()
	defer func() { s.metrics.reindexDuration.Observe(time.Since(start).Seconds()) }()

	entities, err := s.entities.Entities(ctx, bookID)
	if err != nil {
		return report, fmt.Errorf("retrieval: reindex: %w", err)
	}
	report.Entities = len(entities)

	if err := s.store.DeleteCollection(ctx, bookID); err != nil {
		return report, fmt.Errorf("retrieval: reindex: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, e := range entities {
		g.Go(func() error {
			n, err := s.upsertEntity(gctx, bookID, e)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, embedder.ErrNoProvider):
				return err
			case err != nil:
				report.Failed++
				s.metrics.reindexEntities.WithLabelValues("failed").Inc()
				log.Warn("reindex entity failed",
					"source_type", e.Category,
					"source_id", e.ID,
					"error", err,
				)
			case n == 0:
				report.Skipped++
				s.metrics.reindexEntities.WithLabelValues("skipped").Inc()
			default:
				report.Indexed++
				report.Chunks += n
				s.metrics.reindexEntities.WithLabelValues("indexed").Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("retrieval: reindex: %w", err)
	}

	log.Info("reindex complete",
		"entities", report.Entities,
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"chunks", report.Chunks,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

// UpdateSourceEmbeddings re-chunks and re-embeds a single entity, replacing
// its previous chunks. An entity whose representation is empty has its
// chunks removed. It returns the number of chunks written.
func (s *Service) UpdateSourceEmbeddings(ctx context.Context, bookID string, e planning.Entity) (int, error) {
	n, err := s.upsertEntity(ctx, bookID, e)
	if err != nil {
		return 0, fmt.Errorf("retrieval: update %s %s: %w", e.Category, e.ID, err)
	}
	if n == 0 {
		if err := s.DeleteSource(ctx, bookID, e.Category, e.ID); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// upsertEntity writes e's chunks. It returns 0 without touching the store
// when the representation is empty.
func (s *Service) upsertEntity(ctx context.Context, bookID string, e planning.Entity) (int, error) {
	text := Represent(e)
	if text == "" {
		return 0, nil
	}
	pieces := s.chunker.Chunk(text)
	inputs := make([]rag.ChunkInput, len(pieces))
	for i, p := range pieces {
		inputs[i] = rag.ChunkInput{Content: p, Metadata: e.Metadata}
	}
	key := rag.SourceKey{CollectionID: bookID, Type: rag.SourceType(e.Category), SourceID: e.ID}
	n, err := s.store.UpsertChunks(ctx, key, inputs, s.emb)
	if err != nil {
		return 0, err
	}
	s.metrics.chunksWritten.Add(float64(n))
	return n, nil
}

// DeleteSource removes every chunk of one entity. It is idempotent.
func (s *Service) DeleteSource(ctx context.Context, bookID string, c planning.Category, id string) error {
	key := rag.SourceKey{CollectionID: bookID, Type: rag.SourceType(c), SourceID: id}
	if err := s.store.DeleteChunks(ctx, key); err != nil {
		return fmt.Errorf("retrieval: delete %s %s: %w", c, id, err)
	}
	return nil
}

// Search embeds query and returns the limit closest chunks of bookID, best
// first. Embedding failures are returned. A chunk store failure is logged and
// yields no results, so prompt assembly degrades to "no relevant context".
func (s *Service) Search(ctx context.Context, bookID, query string, limit int) ([]rag.SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	vec, err := s.emb.Embed(ctx, query)
	if err != nil {
		s.metrics.searchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}
	res, err := s.store.SimilaritySearch(ctx, bookID, vec, limit)
	if err != nil {
		s.metrics.searchTotal.WithLabelValues("degraded").Inc()
		logging.FromContext(ctx).Warn("similarity search failed, returning no results",
			"book_id", bookID,
			"error", err,
		)
		return nil, nil
	}
	s.metrics.searchTotal.WithLabelValues("ok").Inc()
	return res, nil
}
