package rag

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written on every Qdrant point.
const (
	payloadCollection = "collection_id"
	payloadSourceType = "source_type"
	payloadSourceID   = "source_id"
	payloadIndex      = "chunk_index"
	payloadContent    = "content"
	payloadSeq        = "seq"
	payloadMetaPrefix = "meta_"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection holding every book's chunks
	// (default: plotline_chunks). Books are separated by payload filter.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// seqs allocates the insertion sequence used to break score ties.
	seqs seqClock
}

// seqClock hands out strictly increasing insertion sequences. Values are
// nanoseconds since the epoch so they also increase across restarts, but a
// wall clock that steps backwards never makes a later write sort earlier
// within one process. Two processes writing the same collection can still
// interleave; ties between them are broken by Qdrant's point order.
type seqClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// next reserves n consecutive sequences and returns the first.
func (c *seqClock) next(n int) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	base := max(now().UnixNano(), c.last+1)
	c.last = base + int64(n) - 1
	return base
}

// NewQdrantStore creates a QdrantStore, ensuring the target collection and its
// payload indexes exist.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "plotline_chunks"
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return store, nil
}

// Client exposes the gRPC client for readiness probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// ensureCollection creates the collection and keyword indexes on the scoping
// payload fields if the collection does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	for _, field := range []string{payloadCollection, payloadSourceType, payloadSourceID} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.cfg.Collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to index payload field %q: %w", field, err)
		}
	}

	return nil
}

func collectionFilter(collectionID string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{
		qdrant.NewMatch(payloadCollection, collectionID),
	}}
}

func sourceFilter(key SourceKey) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{
		qdrant.NewMatch(payloadCollection, key.CollectionID),
		qdrant.NewMatch(payloadSourceType, string(key.Type)),
		qdrant.NewMatch(payloadSourceID, key.SourceID),
	}}
}

func (s *QdrantStore) deleteByFilter(ctx context.Context, f *qdrant.Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(f),
	})
	return err
}

// ReplaceSource deletes the source's points and then upserts the new ones.
// Qdrant has no multi-operation transaction, so ChunkStore's per-source lock
// is what keeps concurrent writers from interleaving.
func (s *QdrantStore) ReplaceSource(ctx context.Context, key SourceKey, chunks []Chunk) error {
	if err := s.deleteByFilter(ctx, sourceFilter(key)); err != nil {
		return fmt.Errorf("qdrant: delete source failed: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	base := s.seqs.next(len(chunks))
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		payload := map[string]any{
			payloadCollection: c.CollectionID,
			payloadSourceType: string(c.SourceType),
			payloadSourceID:   c.SourceID,
			payloadIndex:      int64(c.Index),
			payloadContent:    c.Content,
			payloadSeq:        base + int64(i),
		}
		for k, v := range c.Metadata {
			payload[payloadMetaPrefix+k] = v
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// DeleteSource implements VectorStore.
func (s *QdrantStore) DeleteSource(ctx context.Context, key SourceKey) error {
	if err := s.deleteByFilter(ctx, sourceFilter(key)); err != nil {
		return fmt.Errorf("qdrant: delete source failed: %w", err)
	}
	return nil
}

// DeleteCollection removes every point of one book. The Qdrant collection
// itself is shared and stays.
func (s *QdrantStore) DeleteCollection(ctx context.Context, collectionID string) error {
	if err := s.deleteByFilter(ctx, collectionFilter(collectionID)); err != nil {
		return fmt.Errorf("qdrant: delete collection points failed: %w", err)
	}
	return nil
}

// NearestNeighbors runs a filtered cosine query. Qdrant reports cosine
// similarity in [-1,1]; it is mapped onto [0,1] like the other backends.
func (s *QdrantStore) NearestNeighbors(ctx context.Context, collectionID string, query []float32, limit int) ([]SearchResult, error) {
	if uint64(len(query)) != s.cfg.VectorSize {
		return nil, nil
	}
	n := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Filter:         collectionFilter(collectionID),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	cands := make([]scored, len(points))
	out := make([]SearchResult, len(points))
	for i, p := range points {
		r := SearchResult{
			ChunkID:  p.GetId().GetUuid(),
			Score:    ScoreFromCosine(float64(p.GetScore())),
			Metadata: make(map[string]string),
		}
		var seq int64
		for k, v := range p.GetPayload() {
			switch {
			case k == payloadSourceType:
				r.SourceType = SourceType(v.GetStringValue())
			case k == payloadSourceID:
				r.SourceID = v.GetStringValue()
			case k == payloadIndex:
				r.ChunkIndex = int(v.GetIntegerValue())
			case k == payloadContent:
				r.Content = v.GetStringValue()
			case k == payloadSeq:
				seq = v.GetIntegerValue()
			case strings.HasPrefix(k, payloadMetaPrefix):
				r.Metadata[strings.TrimPrefix(k, payloadMetaPrefix)] = valueString(v)
			}
		}
		out[i] = r
		cands[i] = scored{score: r.Score, seq: uint64(max(seq, 0)), idx: i}
	}

	// Qdrant does not order equal scores; apply insertion order.
	ranked := rankTop(cands, limit)
	sorted := make([]SearchResult, len(ranked))
	for i, c := range ranked {
		sorted[i] = out[c.idx]
	}
	return slices.Clip(sorted), nil
}

func valueString(v *qdrant.Value) string {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return strconv.FormatInt(k.IntegerValue, 10)
	case *qdrant.Value_DoubleValue:
		return strconv.FormatFloat(k.DoubleValue, 'f', -1, 64)
	case *qdrant.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	default:
		return ""
	}
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
