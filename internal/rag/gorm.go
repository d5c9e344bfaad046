package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// chunkRow is the chunk_embeddings table. Seq is the insertion order used to
// break score ties.
type chunkRow struct {
	Seq          uint64         `gorm:"primaryKey;autoIncrement"`
	ChunkID      string         `gorm:"size:36;not null;uniqueIndex"`
	CollectionID string         `gorm:"size:64;not null;uniqueIndex:idx_chunk_source,priority:1;index:idx_chunk_collection_dims,priority:1"`
	SourceType   string         `gorm:"size:32;not null;uniqueIndex:idx_chunk_source,priority:2"`
	SourceID     string         `gorm:"size:64;not null;uniqueIndex:idx_chunk_source,priority:3"`
	ChunkIndex   int            `gorm:"not null;uniqueIndex:idx_chunk_source,priority:4"`
	Content      string         `gorm:"type:text;not null"`
	Metadata     datatypes.JSON `gorm:"not null"`
	Embedding    datatypes.JSON
	Dimensions   int `gorm:"not null;index:idx_chunk_collection_dims,priority:2"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (chunkRow) TableName() string { return "chunk_embeddings" }

// GormStore is a VectorStore on the relational database. Vectors are stored
// as JSON and compared with an exact cosine scan over the collection, which
// comfortably serves books with thousands of chunks.
type GormStore struct {
	// db is the shared database handle.
	db *gorm.DB
}

// NewGormStore migrates the chunk_embeddings table and returns a GormStore.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("rag: db must not be nil")
	}
	if err := db.AutoMigrate(&chunkRow{}); err != nil {
		return nil, fmt.Errorf("rag: migrate chunk_embeddings: %w", err)
	}
	return &GormStore{db: db}, nil
}

func sourceScope(key SourceKey) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("collection_id = ? AND source_type = ? AND source_id = ?",
			key.CollectionID, string(key.Type), key.SourceID)
	}
}

// ReplaceSource deletes and re-inserts the source's chunks in one transaction.
func (s *GormStore) ReplaceSource(ctx context.Context, key SourceKey, chunks []Chunk) error {
	rows := make([]chunkRow, 0, len(chunks))
	for _, c := range chunks {
		meta, err := json.Marshal(nonNilMeta(c.Metadata))
		if err != nil {
			return fmt.Errorf("rag: marshal metadata: %w", err)
		}
		vec, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("rag: marshal embedding: %w", err)
		}
		rows = append(rows, chunkRow{
			ChunkID:      c.ID,
			CollectionID: c.CollectionID,
			SourceType:   string(c.SourceType),
			SourceID:     c.SourceID,
			ChunkIndex:   c.Index,
			Content:      c.Content,
			Metadata:     datatypes.JSON(meta),
			Embedding:    datatypes.JSON(vec),
			Dimensions:   len(c.Embedding),
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(sourceScope(key)).Delete(&chunkRow{}).Error; err != nil {
			return fmt.Errorf("rag: delete source chunks: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("rag: insert chunks: %w", err)
		}
		return nil
	})
}

// DeleteSource implements VectorStore.
func (s *GormStore) DeleteSource(ctx context.Context, key SourceKey) error {
	if err := s.db.WithContext(ctx).Scopes(sourceScope(key)).Delete(&chunkRow{}).Error; err != nil {
		return fmt.Errorf("rag: delete source chunks: %w", err)
	}
	return nil
}

// DeleteCollection implements VectorStore.
func (s *GormStore) DeleteCollection(ctx context.Context, collectionID string) error {
	if err := s.db.WithContext(ctx).Where("collection_id = ?", collectionID).Delete(&chunkRow{}).Error; err != nil {
		return fmt.Errorf("rag: delete collection chunks: %w", err)
	}
	return nil
}

// NearestNeighbors scores every chunk of the collection whose vector matches
// the query length, then loads the winners' content.
func (s *GormStore) NearestNeighbors(ctx context.Context, collectionID string, query []float32, limit int) ([]SearchResult, error) {
	rows, err := s.db.WithContext(ctx).
		Model(&chunkRow{}).
		Select("seq", "embedding").
		Where("collection_id = ? AND dimensions = ? AND embedding IS NOT NULL", collectionID, len(query)).
		Order("seq").
		Rows()
	if err != nil {
		return nil, fmt.Errorf("rag: scan embeddings: %w", err)
	}
	var cands []scored
	for rows.Next() {
		var (
			seq uint64
			raw []byte
			vec []float32
		)
		if err := rows.Scan(&seq, &raw); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("rag: scan embeddings: %w", err)
		}
		if err := json.Unmarshal(raw, &vec); err != nil {
			continue
		}
		sim, ok := Cosine(query, vec)
		if !ok {
			continue
		}
		cands = append(cands, scored{score: ScoreFromCosine(sim), seq: seq})
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, fmt.Errorf("rag: scan embeddings: %w", err)
	}

	top := rankTop(cands, limit)
	if len(top) == 0 {
		return nil, nil
	}
	seqs := make([]uint64, len(top))
	for i, c := range top {
		seqs[i] = c.seq
	}

	var hits []chunkRow
	if err := s.db.WithContext(ctx).
		Omit("embedding").
		Where("seq IN ?", seqs).
		Find(&hits).Error; err != nil {
		return nil, fmt.Errorf("rag: load chunks: %w", err)
	}
	bySeq := make(map[uint64]chunkRow, len(hits))
	for _, r := range hits {
		bySeq[r.Seq] = r
	}

	out := make([]SearchResult, 0, len(top))
	for _, c := range top {
		r, ok := bySeq[c.seq]
		if !ok {
			continue // deleted between the two queries
		}
		meta := map[string]string{}
		_ = json.Unmarshal(r.Metadata, &meta)
		out = append(out, SearchResult{
			ChunkID:    r.ChunkID,
			SourceType: SourceType(r.SourceType),
			SourceID:   r.SourceID,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			Metadata:   meta,
			Score:      c.score,
		})
	}
	return out, nil
}

// Count returns the number of chunks stored for collectionID.
func (s *GormStore) Count(ctx context.Context, collectionID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&chunkRow{}).Where("collection_id = ?", collectionID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("rag: count chunks: %w", err)
	}
	return n, nil
}

// Close is a no-op; the database handle is owned by the caller.
func (s *GormStore) Close() error { return nil }

func nonNilMeta(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
