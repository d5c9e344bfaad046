// Package rag stores embedded manuscript chunks and answers similarity
// queries scoped to a single book. A [VectorStore] backend (GORM, Qdrant or
// in-memory) holds the vectors; [ChunkStore] sits in front of it, embedding
// chunk text and serialising writers per source entity.
package rag

import (
	"context"
	"fmt"
	"time"
)

// SourceType names the kind of entity a chunk was cut from.
type SourceType string

// Source types, one per planning category.
const (
	SourceChapter       SourceType = "chapter"
	SourceBrainstorming SourceType = "brainstorming"
	SourceCharacter     SourceType = "character"
	SourceLocation      SourceType = "location"
	SourcePlotPoint     SourceType = "plotPoint"
	SourceTimeline      SourceType = "timeline"
	SourceSceneCard     SourceType = "sceneCard"
	SourceResearch      SourceType = "research"
)

// SourceTypes lists every source type.
var SourceTypes = []SourceType{
	SourceChapter,
	SourceBrainstorming,
	SourceCharacter,
	SourceLocation,
	SourcePlotPoint,
	SourceTimeline,
	SourceSceneCard,
	SourceResearch,
}

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	for _, s := range SourceTypes {
		if s == t {
			return true
		}
	}
	return false
}

// ParseSourceType converts s into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(s)
	if !t.Valid() {
		return "", fmt.Errorf("rag: unknown source type %q", s)
	}
	return t, nil
}

// SourceKey identifies one source entity within a collection. All chunks of
// a source are replaced together.
type SourceKey struct {
	// CollectionID is the owning book.
	CollectionID string
	// Type is the kind of source entity.
	Type SourceType
	// SourceID is the entity's id.
	SourceID string
}

func (k SourceKey) validate() error {
	switch {
	case k.CollectionID == "":
		return fmt.Errorf("rag: collection id must not be empty")
	case !k.Type.Valid():
		return fmt.Errorf("rag: unknown source type %q", k.Type)
	case k.SourceID == "":
		return fmt.Errorf("rag: source id must not be empty")
	}
	return nil
}

// Chunk is one embedded fragment of a source entity.
type Chunk struct {
	// ID is derived from the source key and Index; see ChunkID.
	ID string

	// CollectionID is the owning book.
	CollectionID string

	// SourceType is the kind of entity the chunk came from.
	SourceType SourceType

	// SourceID is the owning entity's id.
	SourceID string

	// Index is the 0-based position within the source's chunk sequence.
	Index int

	// Content is the chunk text.
	Content string

	// Metadata holds per-type attributes such as chapter number or tags.
	Metadata map[string]string

	// Embedding is the chunk's vector.
	Embedding []float32

	// CreatedAt is when the chunk was written.
	CreatedAt time.Time
}

// ChunkInput is the caller-supplied part of a chunk before embedding.
type ChunkInput struct {
	// Content is the chunk text.
	Content string
	// Metadata is copied onto the stored chunk.
	Metadata map[string]string
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	// ChunkID is the matched chunk's id.
	ChunkID string

	// SourceType is the kind of entity the chunk came from.
	SourceType SourceType

	// SourceID is the owning entity's id.
	SourceID string

	// ChunkIndex is the chunk's position within its source.
	ChunkIndex int

	// Content is the chunk text.
	Content string

	// Metadata is the chunk's stored metadata.
	Metadata map[string]string

	// Score is the similarity in [0,1]; 1.0 means identical direction.
	Score float32
}

// VectorStore is a backend for chunk persistence and nearest-neighbour search.
// Every operation is scoped to a single collection. Implementations must be
// safe to call from multiple goroutines.
type VectorStore interface {
	// ReplaceSource removes every chunk stored for key and writes chunks in
	// their place. Chunks arrive with IDs and embeddings already set.
	ReplaceSource(ctx context.Context, key SourceKey, chunks []Chunk) error

	// DeleteSource removes every chunk stored for key. Deleting a source with
	// no chunks is not an error.
	DeleteSource(ctx context.Context, key SourceKey) error

	// DeleteCollection removes every chunk belonging to collectionID.
	DeleteCollection(ctx context.Context, collectionID string) error

	// NearestNeighbors returns up to limit chunks of collectionID ordered by
	// descending similarity to query. Equal scores keep insertion order.
	// Chunks whose vector length differs from the query are skipped.
	NearestNeighbors(ctx context.Context, collectionID string, query []float32, limit int) ([]SearchResult, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder turns one text into a vector. Implementations must be safe to
// call from multiple goroutines.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedFunc adapts a function to the Embedder interface.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Embed calls f.
func (f EmbedFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}
