package vecindex

import (
	"context"
	"sort"

	"specmatch/internal/embedder"
	"specmatch/pkg/types"
)

// exactIndex is the mandatory fallback backend: a linear scan over the whole
// corpus, O(n·d) per query, always correct.
type exactIndex struct {
	items []types.ReferenceItem
	dim   int
}

func newExactIndex(items []types.ReferenceItem, dim int) *exactIndex {
	return &exactIndex{items: items, dim: dim}
}

func (e *exactIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || len(e.items) == 0 {
		return []Hit{}, nil
	}

	query := embedder.Normalize(copyVector(vector))

	hits := make([]Hit, 0, len(e.items))
	for i := range e.items {
		hits = append(hits, Hit{
			Position:   i,
			Item:       &e.items[i],
			Similarity: dotProduct(query, e.items[i].Embedding),
		})
	}

	// Stable keeps equal similarities in corpus order.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func (e *exactIndex) Len() int {
	return len(e.items)
}

func (e *exactIndex) Dimension() int {
	return e.dim
}

func (e *exactIndex) Backend() string {
	return "exact"
}

func (e *exactIndex) Close() error {
	return nil
}

// dotProduct over unit vectors equals cosine similarity. A dimension
// mismatch scores zero rather than panicking; Build guarantees it cannot
// happen for indexed vectors.
func dotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
