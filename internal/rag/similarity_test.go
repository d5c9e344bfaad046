package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		a, b   []float32
		want   float64
		wantOK bool
	}{
		{"identical", []float32{1, 2}, []float32{2, 4}, 1, true},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0, true},
		{"opposite", []float32{1, 0}, []float32{-3, 0}, -1, true},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0, false},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0, false},
		{"empty", nil, nil, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Cosine(tc.a, tc.b)
			assert.Equal(t, tc.wantOK, ok)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestScoreFromCosine(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 1.0, ScoreFromCosine(1), 1e-9)
	assert.InDelta(t, 0.5, ScoreFromCosine(0), 1e-9)
	assert.InDelta(t, 0.0, ScoreFromCosine(-1), 1e-9)
	assert.Equal(t, float32(1), ScoreFromCosine(1.0000001))
	assert.Equal(t, float32(0), ScoreFromCosine(-1.5))
}

func TestChunkID_Deterministic(t *testing.T) {
	t.Parallel()
	k := SourceKey{"book", SourceChapter, "ch1"}
	assert.Equal(t, ChunkID(k, 0), ChunkID(k, 0))
	assert.NotEqual(t, ChunkID(k, 0), ChunkID(k, 1))
	assert.NotEqual(t, ChunkID(k, 0), ChunkID(SourceKey{"other", SourceChapter, "ch1"}, 0))
	assert.Len(t, ChunkID(k, 0), 36)
}

func TestParseSourceType(t *testing.T) {
	t.Parallel()
	for _, st := range SourceTypes {
		got, err := ParseSourceType(string(st))
		assert.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := ParseSourceType("poem")
	assert.Error(t, err)
}
