package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lengthEmbedder maps text to a 2-d vector derived from its first byte so
// results are deterministic.
func lengthEmbedder() Embedder {
	return EmbedFunc(func(_ context.Context, text string) ([]float32, error) {
		return []float32{float32(text[0]), float32(len(text))}, nil
	})
}

// failingBackend returns err from every call.
type failingBackend struct{ err error }

func (f failingBackend) ReplaceSource(context.Context, SourceKey, []Chunk) error { return f.err }
func (f failingBackend) DeleteSource(context.Context, SourceKey) error            { return f.err }
func (f failingBackend) DeleteCollection(context.Context, string) error          { return f.err }
func (f failingBackend) NearestNeighbors(context.Context, string, []float32, int) ([]SearchResult, error) {
	return nil, f.err
}
func (f failingBackend) Close() error { return nil }

func newTestChunkStore(t *testing.T) (*ChunkStore, *MemoryStore) {
	t.Helper()
	mem := NewMemoryStore()
	cs, err := NewChunkStore(mem)
	require.NoError(t, err)
	return cs, mem
}

func TestChunkStore_UpsertEmbedsEachChunk(t *testing.T) {
	t.Parallel()
	cs, mem := newTestChunkStore(t)
	ctx := context.Background()

	var seen []string
	var mu sync.Mutex
	emb := EmbedFunc(func(_ context.Context, text string) ([]float32, error) {
		mu.Lock()
		seen = append(seen, text)
		mu.Unlock()
		return []float32{1, 0}, nil
	})

	key := SourceKey{"book", SourceChapter, "ch1"}
	n, err := cs.UpsertChunks(ctx, key, []ChunkInput{
		{Content: "first part", Metadata: map[string]string{"chapter": "1"}},
		{Content: "   "},
		{Content: "second part"},
	}, emb)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first part", "second part"}, seen)

	stored := mem.Chunks("book")
	require.Len(t, stored, 2)
	assert.Equal(t, ChunkID(key, 0), stored[0].ID)
	assert.Equal(t, ChunkID(key, 1), stored[1].ID)
	assert.Equal(t, 1, stored[1].Index)
	assert.Equal(t, "1", stored[0].Metadata["chapter"])
}

func TestChunkStore_UpsertOverwrite(t *testing.T) {
	t.Parallel()
	cs, mem := newTestChunkStore(t)
	ctx := context.Background()
	key := SourceKey{"book", SourceCharacter, "alice"}

	_, err := cs.UpsertChunks(ctx, key, []ChunkInput{{Content: "a"}, {Content: "b"}, {Content: "c"}}, lengthEmbedder())
	require.NoError(t, err)
	_, err = cs.UpsertChunks(ctx, key, []ChunkInput{{Content: "new text"}}, lengthEmbedder())
	require.NoError(t, err)

	stored := mem.Chunks("book")
	require.Len(t, stored, 1)
	assert.Equal(t, "new text", stored[0].Content)
}

func TestChunkStore_EmbedFailureKeepsPreviousChunks(t *testing.T) {
	t.Parallel()
	cs, mem := newTestChunkStore(t)
	ctx := context.Background()
	key := SourceKey{"book", SourceCharacter, "alice"}

	_, err := cs.UpsertChunks(ctx, key, []ChunkInput{{Content: "old"}}, lengthEmbedder())
	require.NoError(t, err)

	sentinel := errors.New("provider down")
	bad := EmbedFunc(func(context.Context, string) ([]float32, error) { return nil, sentinel })
	_, err = cs.UpsertChunks(ctx, key, []ChunkInput{{Content: "new"}}, bad)
	require.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, ErrChunkStore)

	stored := mem.Chunks("book")
	require.Len(t, stored, 1)
	assert.Equal(t, "old", stored[0].Content)
}

func TestChunkStore_BackendErrorsAreChunkStoreErrors(t *testing.T) {
	t.Parallel()
	cs, err := NewChunkStore(failingBackend{err: errors.New("db gone")})
	require.NoError(t, err)
	ctx := context.Background()
	key := SourceKey{"book", SourceResearch, "r1"}

	_, err = cs.UpsertChunks(ctx, key, []ChunkInput{{Content: "x"}}, lengthEmbedder())
	require.ErrorIs(t, err, ErrChunkStore)
	var cse *ChunkStoreError
	require.ErrorAs(t, err, &cse)
	assert.Equal(t, "upsert", cse.Op)

	assert.ErrorIs(t, cs.DeleteChunks(ctx, key), ErrChunkStore)
	_, err = cs.SimilaritySearch(ctx, "book", []float32{1}, 3)
	assert.ErrorIs(t, err, ErrChunkStore)
}

func TestChunkStore_ValidatesKey(t *testing.T) {
	t.Parallel()
	cs, _ := newTestChunkStore(t)
	ctx := context.Background()
	cases := []SourceKey{
		{"", SourceChapter, "x"},
		{"book", SourceType("poem"), "x"},
		{"book", SourceChapter, ""},
	}
	for _, k := range cases {
		_, err := cs.UpsertChunks(ctx, k, []ChunkInput{{Content: "x"}}, lengthEmbedder())
		assert.Error(t, err, "key %+v", k)
	}
}

func TestChunkStore_SearchEdgeCases(t *testing.T) {
	t.Parallel()
	cs, _ := newTestChunkStore(t)
	ctx := context.Background()

	res, err := cs.SimilaritySearch(ctx, "book", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = cs.SimilaritySearch(ctx, "book", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = cs.SimilaritySearch(ctx, "", []float32{1}, 5)
	assert.Error(t, err)
}

func TestChunkStore_ConcurrentWritersSameSource(t *testing.T) {
	t.Parallel()
	cs, mem := newTestChunkStore(t)
	ctx := context.Background()
	key := SourceKey{"book", SourceChapter, "ch1"}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inputs := make([]ChunkInput, i%4+1)
			for j := range inputs {
				inputs[j] = ChunkInput{Content: strings.Repeat("x", j+1)}
			}
			_, err := cs.UpsertChunks(ctx, key, inputs, lengthEmbedder())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Whatever writer won, the source holds one contiguous chunk set.
	stored := mem.Chunks("book")
	require.NotEmpty(t, stored)
	for i, c := range stored {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, ChunkID(key, i), c.ID)
	}
	assert.Equal(t, 0, cs.locks.size())
}
