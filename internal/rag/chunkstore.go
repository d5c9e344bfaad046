package rag

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// ErrChunkStore matches every *ChunkStoreError via errors.Is.
var ErrChunkStore = errors.New("chunk store failure")

// ChunkStoreError reports a backend failure during a chunk store operation.
type ChunkStoreError struct {
	// Op is the failing operation: upsert, delete, delete_collection, search.
	Op string
	// Err is the backend error.
	Err error
}

func (e *ChunkStoreError) Error() string {
	return fmt.Sprintf("rag: %s: %s: %v", e.Op, ErrChunkStore, e.Err)
}

func (e *ChunkStoreError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrChunkStore) match any ChunkStoreError.
func (e *ChunkStoreError) Is(target error) bool { return target == ErrChunkStore }

// ChunkStore embeds chunk text and persists it through a VectorStore backend.
// Writers to the same source are serialised; writers to different sources
// proceed in parallel.
type ChunkStore struct {
	// backend persists and searches vectors.
	backend VectorStore
	// locks serialises ReplaceSource/DeleteSource per source.
	locks *keyedMutex
}

// NewChunkStore wraps backend.
func NewChunkStore(backend VectorStore) (*ChunkStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("rag: backend must not be nil")
	}
	return &ChunkStore{backend: backend, locks: newKeyedMutex()}, nil
}

// UpsertChunks replaces every stored chunk of key with inputs, embedding each
// chunk's content individually with emb. Embedding happens before any row is
// touched, so an embedding failure leaves the previous chunks in place and is
// returned unwrapped (callers can test it with errors.Is). Empty inputs are
// skipped. It returns the number of chunks written.
func (s *ChunkStore) UpsertChunks(ctx context.Context, key SourceKey, inputs []ChunkInput, emb Embedder) (int, error) {
	if err := key.validate(); err != nil {
		return 0, err
	}
	if emb == nil {
		return 0, fmt.Errorf("rag: embedder must not be nil")
	}

	chunks := make([]Chunk, 0, len(inputs))
	now := time.Now().UTC()
	for _, in := range inputs {
		content := strings.TrimSpace(in.Content)
		if content == "" {
			continue
		}
		vec, err := emb.Embed(ctx, content)
		if err != nil {
			return 0, fmt.Errorf("rag: embed chunk %d of %s/%s: %w", len(chunks), key.Type, key.SourceID, err)
		}
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:           ChunkID(key, idx),
			CollectionID: key.CollectionID,
			SourceType:   key.Type,
			SourceID:     key.SourceID,
			Index:        idx,
			Content:      content,
			Metadata:     maps.Clone(in.Metadata),
			Embedding:    vec,
			CreatedAt:    now,
		})
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	if err := s.backend.ReplaceSource(ctx, key, chunks); err != nil {
		return 0, &ChunkStoreError{Op: "upsert", Err: err}
	}
	return len(chunks), nil
}

// DeleteChunks removes every chunk of key. It is idempotent.
func (s *ChunkStore) DeleteChunks(ctx context.Context, key SourceKey) error {
	if err := key.validate(); err != nil {
		return err
	}
	unlock := s.locks.Lock(key)
	defer unlock()

	if err := s.backend.DeleteSource(ctx, key); err != nil {
		return &ChunkStoreError{Op: "delete", Err: err}
	}
	return nil
}

// DeleteCollection removes every chunk of collectionID.
func (s *ChunkStore) DeleteCollection(ctx context.Context, collectionID string) error {
	if collectionID == "" {
		return fmt.Errorf("rag: collection id must not be empty")
	}
	if err := s.backend.DeleteCollection(ctx, collectionID); err != nil {
		return &ChunkStoreError{Op: "delete_collection", Err: err}
	}
	return nil
}

// SimilaritySearch returns the limit chunks of collectionID closest to query,
// best first. A non-positive limit or an empty query returns no results.
func (s *ChunkStore) SimilaritySearch(ctx context.Context, collectionID string, query []float32, limit int) ([]SearchResult, error) {
	if collectionID == "" {
		return nil, fmt.Errorf("rag: collection id must not be empty")
	}
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}
	res, err := s.backend.NearestNeighbors(ctx, collectionID, query, limit)
	if err != nil {
		return nil, &ChunkStoreError{Op: "search", Err: err}
	}
	return res, nil
}

// Close closes the backend.
func (s *ChunkStore) Close() error {
	return s.backend.Close()
}
