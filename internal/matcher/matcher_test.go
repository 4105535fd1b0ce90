package matcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specmatch/internal/embedder"
	"specmatch/internal/scoring"
	"specmatch/internal/vecindex"
	"specmatch/pkg/types"
)

// stubEmbedder returns canned vectors per input text and can be told to fail
// for specific texts.
type stubEmbedder struct {
	vectors map[string][]float32
	failOn  map[string]bool
	dim     int
}

func newStubEmbedder(dim int) *stubEmbedder {
	return &stubEmbedder{
		vectors: make(map[string][]float32),
		failOn:  make(map[string]bool),
		dim:     dim,
	}
}

func (s *stubEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	if s.failOn[text] {
		return nil, fmt.Errorf("%w: stubbed failure", embedder.ErrProviderFailed)
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	// Unknown text embeds orthogonal to everything registered.
	v := make([]float32, s.dim)
	v[s.dim-1] = 1
	return v, nil
}

func (s *stubEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Encode(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int   { return s.dim }
func (s *stubEmbedder) Provider() string { return "stub" }
func (s *stubEmbedder) Close() error     { return nil }

func buildIndex(t *testing.T, items []types.ReferenceItem) vecindex.Index {
	t.Helper()
	idx, err := vecindex.Build(context.Background(), items, vecindex.Options{})
	require.NoError(t, err)
	return idx
}

func newMatcher(t *testing.T, enc embedder.Embedder, items []types.ReferenceItem, opts Options) *Matcher {
	t.Helper()
	m, err := New(enc, nil, buildIndex(t, items), items, opts)
	require.NoError(t, err)
	return m
}

func TestNewValidation(t *testing.T) {
	enc := newStubEmbedder(2)
	idx := buildIndex(t, nil)

	t.Run("nil embedder", func(t *testing.T) {
		_, err := New(nil, nil, idx, nil, Options{})
		assert.ErrorIs(t, err, ErrNilEmbedder)
	})

	t.Run("nil index", func(t *testing.T) {
		_, err := New(enc, nil, nil, nil, Options{})
		assert.ErrorIs(t, err, ErrNilIndex)
	})

	t.Run("floor above threshold", func(t *testing.T) {
		_, err := New(enc, nil, idx, nil, Options{MatchThreshold: 0.7, ReviewFloor: 0.8})
		assert.Error(t, err)
	})

	t.Run("defaults applied", func(t *testing.T) {
		m, err := New(enc, nil, idx, nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, DefaultTopK, m.opts.TopK)
		assert.Equal(t, DefaultMatchThreshold, m.opts.MatchThreshold)
		assert.Equal(t, scoring.DefaultWeights(), m.opts.Weights)
	})
}

func TestMatchRejectsBlankQuery(t *testing.T) {
	m := newMatcher(t, newStubEmbedder(2), nil, Options{})

	_, err := m.Match(context.Background(), types.QueryItem{ID: "q1"})
	assert.ErrorIs(t, err, types.ErrEmptyDescription)
}

func TestMatchExcavationQuery(t *testing.T) {
	enc := newStubEmbedder(2)
	enc.vectors["Excavación manual a mano"] = []float32{1, 0}

	items := []types.ReferenceItem{
		{Code: "01.01", Description: "Excavación manual", Unit: "m3", Embedding: []float32{1, 0}},
	}
	m := newMatcher(t, enc, items, Options{})

	res, err := m.Match(context.Background(), types.QueryItem{
		ID:          "q1",
		Description: "Excavación manual a mano",
		Unit:        "m3",
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusMatched, res.Status)
	require.NotNil(t, res.Best)
	assert.Equal(t, "01.01", res.Best.ReferenceCode)
	assert.Equal(t, res.Best.CombinedScore, res.Confidence)
	assert.NoError(t, res.Validate())
}

func TestMatchAmbiguousWhenTopTwoTooClose(t *testing.T) {
	enc := newStubEmbedder(2)
	enc.vectors["Muro de ladrillo"] = []float32{1, 0}

	// Two near-identical catalogue entries, both scoring high and within the
	// ambiguity gap of each other.
	items := []types.ReferenceItem{
		{Code: "02.01", Description: "Muro de ladrillo visto", Unit: "m2", Embedding: []float32{1, 0}},
		{Code: "02.02", Description: "Muro de ladrillo común", Unit: "m2", Embedding: []float32{1, 0}},
	}
	m := newMatcher(t, enc, items, Options{})

	res, err := m.Match(context.Background(), types.QueryItem{
		ID:          "q1",
		Description: "Muro de ladrillo",
		Unit:        "m2",
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusAmbiguous, res.Status)
	require.NotNil(t, res.Best)
	assert.GreaterOrEqual(t, res.Best.CombinedScore, DefaultMatchThreshold)
	require.Len(t, res.Alternatives, 1)
	assert.Less(t, res.Best.CombinedScore-res.Alternatives[0].CombinedScore, DefaultAmbiguityGap)
}

func TestMatchEmptyCorpus(t *testing.T) {
	m := newMatcher(t, newStubEmbedder(2), nil, Options{})

	res, err := m.Match(context.Background(), types.QueryItem{ID: "q1", Description: "anything at all"})
	require.NoError(t, err)

	assert.Equal(t, types.StatusNoMatch, res.Status)
	assert.Nil(t, res.Best)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.Alternatives)
}

func TestMatchNoMatchKeepsRejectedBest(t *testing.T) {
	enc := newStubEmbedder(2)
	enc.vectors["Tubería de acero galvanizado"] = []float32{1, 0}

	// Orthogonal embedding and an unrelated description: every signal is low.
	items := []types.ReferenceItem{
		{Code: "09.01", Description: "Pintura látex interior", Unit: "m2", Embedding: []float32{0, 1}},
	}
	m := newMatcher(t, enc, items, Options{})

	res, err := m.Match(context.Background(), types.QueryItem{
		ID:          "q1",
		Description: "Tubería de acero galvanizado",
		Unit:        "m",
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusNoMatch, res.Status)
	require.NotNil(t, res.Best, "rejected best stays attached for traceability")
	assert.Less(t, res.Best.CombinedScore, DefaultReviewFloor)
	assert.Equal(t, res.Best.CombinedScore, res.Confidence)
}

func TestMatchThresholdIsInclusive(t *testing.T) {
	enc := newStubEmbedder(2)
	enc.vectors["query"] = []float32{1, 0}

	items := []types.ReferenceItem{
		{Code: "A", Description: "ref", Embedding: []float32{1, 0}},
	}

	// Weights put everything on the fuzzy signal; the stub scorer pins the
	// combined score exactly at the threshold.
	weights, err := scoring.NewWeights(0, 1, 0, 0)
	require.NoError(t, err)

	m := newMatcher(t, enc, items, Options{
		Weights: weights,
		Fuzzy:   func(a, b string) float64 { return 75 },
	})

	res, err := m.Match(context.Background(), types.QueryItem{ID: "q1", Description: "query"})
	require.NoError(t, err)

	assert.Equal(t, 0.75, res.Best.CombinedScore)
	assert.Equal(t, types.StatusMatched, res.Status)
}

func TestMatchManualReviewBand(t *testing.T) {
	enc := newStubEmbedder(2)
	enc.vectors["query"] = []float32{1, 0}

	items := []types.ReferenceItem{
		{Code: "A", Description: "ref", Embedding: []float32{1, 0}},
	}
	weights, err := scoring.NewWeights(0, 1, 0, 0)
	require.NoError(t, err)

	m := newMatcher(t, enc, items, Options{
		Weights: weights,
		Fuzzy:   func(a, b string) float64 { return 70 },
	})

	res, err := m.Match(context.Background(), types.QueryItem{ID: "q1", Description: "query"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusManualReview, res.Status)
}

func TestMatchAlternativesBounded(t *testing.T) {
	enc := newStubEmbedder(2)
	enc.vectors["query"] = []float32{1, 0}

	items := make([]types.ReferenceItem, 6)
	for i := range items {
		items[i] = types.ReferenceItem{
			Code:        fmt.Sprintf("%02d", i),
			Description: "ref",
			Embedding:   []float32{1, 0},
		}
	}
	m := newMatcher(t, enc, items, Options{})

	res, err := m.Match(context.Background(), types.QueryItem{ID: "q1", Description: "query"})
	require.NoError(t, err)
	assert.Len(t, res.Alternatives, maxAlternatives)
}

func TestMatchIdempotent(t *testing.T) {
	enc := newStubEmbedder(2)
	enc.vectors["Excavación manual"] = []float32{0.8, 0.6}

	items := []types.ReferenceItem{
		{Code: "01.01", Description: "Excavación manual", Unit: "m3", Embedding: []float32{0.8, 0.6}},
		{Code: "01.02", Description: "Excavación con maquinaria", Unit: "m3", Embedding: []float32{0.6, 0.8}},
	}
	m := newMatcher(t, enc, items, Options{})

	query := types.QueryItem{ID: "q1", Description: "Excavación manual", Unit: "m3"}

	first, err := m.Match(context.Background(), query)
	require.NoError(t, err)
	second, err := m.Match(context.Background(), query)
	require.NoError(t, err)

	first.Elapsed, second.Elapsed = 0, 0
	assert.Equal(t, first, second)
}

func TestMatchFallsBackToFuzzyOnProviderFailure(t *testing.T) {
	enc := newStubEmbedder(2)
	enc.failOn["Excavación manual"] = true

	items := []types.ReferenceItem{
		{Code: "01.01", Description: "Excavación manual", Unit: "m3", Embedding: []float32{1, 0}},
		{Code: "05.01", Description: "Cubierta de teja cerámica", Unit: "m2", Embedding: []float32{0, 1}},
	}
	m := newMatcher(t, enc, items, Options{})

	res, err := m.Match(context.Background(), types.QueryItem{
		ID:          "q1",
		Description: "Excavación manual",
		Unit:        "m3",
	})
	require.NoError(t, err)

	require.NotNil(t, res.Best)
	assert.Equal(t, "01.01", res.Best.ReferenceCode)
	// Identical description scores 100 on fuzzy, so the pinned semantic
	// signal is 1.0 and the result clears the match threshold.
	assert.Equal(t, types.StatusMatched, res.Status)
	assert.InDelta(t, res.Best.FuzzyScore/100.0, res.Best.SemanticScore, 1e-9)
}

func TestMatchBatchSurvivesSingleProviderFailure(t *testing.T) {
	enc := newStubEmbedder(2)

	items := []types.ReferenceItem{
		{Code: "01.01", Description: "Excavación manual", Unit: "m3", Embedding: []float32{1, 0}},
	}

	queries := make([]types.QueryItem, 10)
	for i := range queries {
		desc := fmt.Sprintf("Excavación manual variante %d", i)
		queries[i] = types.QueryItem{ID: fmt.Sprintf("q%d", i), Description: desc, Unit: "m3"}
		enc.vectors[desc] = []float32{1, 0}
	}
	enc.failOn[queries[3].Description] = true

	m := newMatcher(t, enc, items, Options{Workers: 3})

	results, err := m.MatchBatch(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, results, 10)

	for i, res := range results {
		assert.Equal(t, queries[i].ID, res.QueryID, "results keep input order")
		assert.NotNil(t, res.Best)
	}
}

func TestMatchBatchStopsOnCancellation(t *testing.T) {
	enc := newStubEmbedder(2)
	m := newMatcher(t, enc, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.MatchBatch(ctx, []types.QueryItem{{ID: "q1", Description: "anything"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchUsesCache(t *testing.T) {
	enc := newStubEmbedder(2)
	enc.vectors["query"] = []float32{1, 0}

	items := []types.ReferenceItem{
		{Code: "A", Description: "ref", Embedding: []float32{1, 0}},
	}

	cache := embedder.NewCache(16)
	m, err := New(enc, cache, buildIndex(t, items), items, Options{})
	require.NoError(t, err)

	_, err = m.Match(context.Background(), types.QueryItem{ID: "q1", Description: "query"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	// Second match of the same text hits the cache even if the provider
	// starts failing.
	enc.failOn["query"] = true
	res, err := m.Match(context.Background(), types.QueryItem{ID: "q2", Description: "query"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusMatched, res.Status)
}

func TestMatchBatchEmptyInput(t *testing.T) {
	m := newMatcher(t, newStubEmbedder(2), nil, Options{})

	results, err := m.MatchBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
