package rag

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
)

// chunkNamespace seeds deterministic chunk ids.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://plotline.app/chunk"))

// ChunkID returns the stable id of chunk index within the source identified
// by key. Re-indexing a source therefore overwrites its rows instead of
// adding new ones. The id is a UUID so it is valid as a Qdrant point id.
func ChunkID(key SourceKey, index int) string {
	name := fmt.Sprintf("%s|%s|%s|%d", key.CollectionID, key.Type, key.SourceID, index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// Cosine returns the cosine similarity of a and b in [-1,1]. It returns
// ok=false when the lengths differ or either vector has zero magnitude.
func Cosine(a, b []float32) (sim float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// ScoreFromCosine maps a cosine similarity onto [0,1], 1.0 being identical.
// The mapping is monotonic, so ranking by score equals ranking by distance.
func ScoreFromCosine(c float64) float32 {
	s := (1 + c) / 2
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	}
	return float32(s)
}

// scored pairs a candidate with its score and insertion sequence.
type scored struct {
	score float32
	seq   uint64
	idx   int
}

// rankTop sorts candidates by descending score, breaking ties by ascending
// seq, and returns at most limit of them.
func rankTop(cands []scored, limit int) []scored {
	slices.SortFunc(cands, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	if limit >= 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	return cands
}
