package rag

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStore is a process-local VectorStore that scans every chunk of a
// collection on each query. It suits tests and single-user deployments.
type MemoryStore struct {
	mu sync.RWMutex
	// collections maps collection id to its chunks in insertion order.
	collections map[string][]memoryChunk
	// seq is the last assigned insertion sequence.
	seq uint64
}

type memoryChunk struct {
	Chunk
	seq uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]memoryChunk)}
}

// ReplaceSource implements VectorStore.
func (m *MemoryStore) ReplaceSource(_ context.Context, key SourceKey, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.withoutSource(key)
	for _, c := range chunks {
		m.seq++
		c.Metadata = maps.Clone(c.Metadata)
		c.Embedding = slices.Clone(c.Embedding)
		kept = append(kept, memoryChunk{Chunk: c, seq: m.seq})
	}
	m.collections[key.CollectionID] = kept
	return nil
}

// DeleteSource implements VectorStore.
func (m *MemoryStore) DeleteSource(_ context.Context, key SourceKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[key.CollectionID] = m.withoutSource(key)
	return nil
}

// withoutSource returns the collection's chunks minus those of key. Callers hold mu.
func (m *MemoryStore) withoutSource(key SourceKey) []memoryChunk {
	existing := m.collections[key.CollectionID]
	kept := make([]memoryChunk, 0, len(existing))
	for _, c := range existing {
		if c.SourceType == key.Type && c.SourceID == key.SourceID {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// DeleteCollection implements VectorStore.
func (m *MemoryStore) DeleteCollection(_ context.Context, collectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collectionID)
	return nil
}

// NearestNeighbors implements VectorStore.
func (m *MemoryStore) NearestNeighbors(_ context.Context, collectionID string, query []float32, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunks := m.collections[collectionID]
	cands := make([]scored, 0, len(chunks))
	for i, c := range chunks {
		sim, ok := Cosine(query, c.Embedding)
		if !ok {
			continue
		}
		cands = append(cands, scored{score: ScoreFromCosine(sim), seq: c.seq, idx: i})
	}

	top := rankTop(cands, limit)
	out := make([]SearchResult, 0, len(top))
	for _, s := range top {
		c := chunks[s.idx]
		out = append(out, SearchResult{
			ChunkID:    c.ID,
			SourceType: c.SourceType,
			SourceID:   c.SourceID,
			ChunkIndex: c.Index,
			Content:    c.Content,
			Metadata:   maps.Clone(c.Metadata),
			Score:      s.score,
		})
	}
	return out, nil
}

// Chunks returns a copy of the collection's chunks in insertion order.
func (m *MemoryStore) Chunks(collectionID string) []Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Chunk, 0, len(m.collections[collectionID]))
	for _, c := range m.collections[collectionID] {
		out = append(out, c.Chunk)
	}
	return out
}

// Close implements VectorStore.
func (m *MemoryStore) Close() error { return nil }
