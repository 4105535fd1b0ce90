package vecindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specmatch/pkg/types"
)

func corpus(vectors ...[]float32) []types.ReferenceItem {
	items := make([]types.ReferenceItem, len(vectors))
	for i, v := range vectors {
		items[i] = types.ReferenceItem{
			Code:        codeFor(i),
			Description: "item",
			Embedding:   v,
		}
	}
	return items
}

func codeFor(i int) string {
	return string(rune('A' + i))
}

func TestBuildValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("empty corpus builds", func(t *testing.T) {
		idx, err := Build(ctx, nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, 0, idx.Len())

		hits, err := idx.Search(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("zero dimension rejected", func(t *testing.T) {
		_, err := Build(ctx, corpus([]float32{}), Options{})
		assert.ErrorIs(t, err, ErrEmptyVector)
	})

	t.Run("mixed dimensions rejected", func(t *testing.T) {
		_, err := Build(ctx, corpus([]float32{1, 0}, []float32{1, 0, 0}), Options{})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("exact backend chosen without qdrant", func(t *testing.T) {
		idx, err := Build(ctx, corpus([]float32{1, 0}), Options{})
		require.NoError(t, err)
		assert.Equal(t, "exact", idx.Backend())
	})

	t.Run("small corpus stays exact even with qdrant configured", func(t *testing.T) {
		idx, err := Build(ctx, corpus([]float32{1, 0}), Options{
			QdrantAddr:      "localhost:6334",
			ApproxThreshold: 1000,
		})
		require.NoError(t, err)
		assert.Equal(t, "exact", idx.Backend())
	})
}

func TestExactSearchOrdering(t *testing.T) {
	ctx := context.Background()

	// Unit vectors at decreasing similarity to the query (1, 0).
	idx, err := Build(ctx, corpus(
		[]float32{0, 1},     // orthogonal
		[]float32{1, 0},     // identical
		[]float32{0.6, 0.8}, // in between
	), Options{})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, codeFor(1), hits[0].Item.Code)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, codeFor(2), hits[1].Item.Code)
	assert.InDelta(t, 0.6, hits[1].Similarity, 1e-6)
	assert.Equal(t, codeFor(0), hits[2].Item.Code)
	assert.InDelta(t, 0.0, hits[2].Similarity, 1e-6)
}

func TestExactSearchTiesKeepCorpusOrder(t *testing.T) {
	ctx := context.Background()

	// Two identical vectors: the earlier corpus position must rank first.
	idx, err := Build(ctx, corpus(
		[]float32{1, 0},
		[]float32{1, 0},
		[]float32{0, 1},
	), Options{})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, 1, hits[1].Position)
}

func TestExactSearchDeterministic(t *testing.T) {
	ctx := context.Background()
	idx, err := Build(ctx, corpus(
		[]float32{0.3, 0.7}, []float32{0.5, 0.5}, []float32{0.9, 0.1},
	), Options{})
	require.NoError(t, err)

	first, err := idx.Search(ctx, []float32{0.4, 0.6}, 3)
	require.NoError(t, err)
	second, err := idx.Search(ctx, []float32{0.4, 0.6}, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExactSearchNormalizesQuery(t *testing.T) {
	ctx := context.Background()
	idx, err := Build(ctx, corpus([]float32{1, 0}), Options{})
	require.NoError(t, err)

	// A scaled query must produce the same similarity as the unit query.
	unit, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	scaled, err := idx.Search(ctx, []float32{12, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, unit[0].Similarity, scaled[0].Similarity, 1e-6)
}

func TestExactSearchBounds(t *testing.T) {
	ctx := context.Background()
	idx, err := Build(ctx, corpus([]float32{1, 0}, []float32{0, 1}), Options{})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "k larger than corpus returns whole corpus")

	hits, err = idx.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBuildNormalizesCorpus(t *testing.T) {
	ctx := context.Background()

	// Non-unit corpus vector: after Build, searching with the same
	// direction scores 1.0.
	idx, err := Build(ctx, corpus([]float32{3, 4}), Options{})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{3, 4}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}
