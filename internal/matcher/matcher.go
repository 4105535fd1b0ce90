// Package matcher orchestrates the per-query pipeline: embed, retrieve top-k
// candidates, refine with fuzzy similarity, fuse the signals and classify the
// outcome.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"specmatch/internal/embedder"
	"specmatch/internal/scoring"
	"specmatch/internal/vecindex"
	"specmatch/pkg/types"
)

// Construction errors.
var (
	ErrNilEmbedder = errors.New("matcher requires an embedder")
	ErrNilIndex    = errors.New("matcher requires a vector index")
)

// Defaults for the knobs callers leave zero.
const (
	DefaultTopK           = 5
	DefaultMatchThreshold = 0.75
	DefaultReviewFloor    = 0.65
	DefaultAmbiguityGap   = 0.05
	DefaultWorkers        = 4

	maxAlternatives  = 3
	progressInterval = 10
)

// Options tunes classification and batch behavior. Zero values take the
// package defaults; Weights must come from scoring.NewWeights or
// scoring.DefaultWeights.
type Options struct {
	Weights        scoring.Weights
	MatchThreshold float64
	ReviewFloor    float64
	AmbiguityGap   float64
	TopK           int
	Workers        int

	// Fuzzy overrides the string scorer. Defaults to scoring.TokenSetRatio.
	Fuzzy scoring.FuzzyFunc
}

// Matcher matches query items against a fixed reference corpus. It holds no
// per-query state: one Matcher serves any number of concurrent Match calls.
type Matcher struct {
	enc    embedder.Embedder
	cache  *embedder.Cache
	index  vecindex.Index
	corpus []types.ReferenceItem
	opts   Options
}

// New wires a matcher from its collaborators. corpus must be the same slice
// the index was built from, so that fuzzy-only fallback sees the identical
// reference set. cache may be nil to disable embedding reuse.
func New(enc embedder.Embedder, cache *embedder.Cache, index vecindex.Index, corpus []types.ReferenceItem, opts Options) (*Matcher, error) {
	if enc == nil {
		return nil, ErrNilEmbedder
	}
	if index == nil {
		return nil, ErrNilIndex
	}

	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MatchThreshold == 0 {
		opts.MatchThreshold = DefaultMatchThreshold
	}
	if opts.ReviewFloor == 0 {
		opts.ReviewFloor = DefaultReviewFloor
	}
	if opts.AmbiguityGap == 0 {
		opts.AmbiguityGap = DefaultAmbiguityGap
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Fuzzy == nil {
		opts.Fuzzy = scoring.TokenSetRatio
	}
	if (opts.Weights == scoring.Weights{}) {
		opts.Weights = scoring.DefaultWeights()
	}

	if opts.ReviewFloor >= opts.MatchThreshold {
		return nil, fmt.Errorf("review floor %.3f must be below match threshold %.3f",
			opts.ReviewFloor, opts.MatchThreshold)
	}

	return &Matcher{
		enc:    enc,
		cache:  cache,
		index:  index,
		corpus: corpus,
		opts:   opts,
	}, nil
}

// Match runs the full pipeline for one query. It returns an error only for a
// malformed query or a cancelled context; provider failures degrade to
// fuzzy-only scoring and still produce a result.
func (m *Matcher) Match(ctx context.Context, query types.QueryItem) (types.MatchResult, error) {
	start := time.Now()

	if err := query.Validate(); err != nil {
		return types.MatchResult{}, fmt.Errorf("query %s: %w", query.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return types.MatchResult{}, err
	}

	evidences, err := m.retrieve(ctx, query)
	if err != nil {
		return types.MatchResult{}, err
	}

	result := m.classify(query, evidences)
	result.Elapsed = time.Since(start)
	return result, nil
}

// MatchBatch matches every query with a bounded worker pool and returns one
// result per input, in input order. Per-query provider failures do not stop
// the batch; only cancellation does.
func (m *Matcher) MatchBatch(ctx context.Context, queries []types.QueryItem) ([]types.MatchResult, error) {
	results := make([]types.MatchResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)

	var done atomic.Int64
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			res, err := m.Match(gctx, q)
			if err != nil {
				return err
			}
			results[i] = res

			if n := done.Add(1); n%progressInterval == 0 {
				log.Printf("matcher: %d/%d queries matched", n, len(queries))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// retrieve embeds the query and refines the top-k index hits into evidence.
// When embedding fails the query degrades to fuzzy-only scoring over the
// corpus instead of failing.
func (m *Matcher) retrieve(ctx context.Context, query types.QueryItem) ([]types.CandidateEvidence, error) {
	vector, err := m.encode(ctx, query.Description)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("matcher: embedding failed for query %s, using fuzzy-only scoring: %v", query.ID, err)
		return m.fuzzyOnly(query), nil
	}

	hits, err := m.index.Search(ctx, vector, m.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("search for query %s: %w", query.ID, err)
	}

	evidences := make([]types.CandidateEvidence, 0, len(hits))
	for _, hit := range hits {
		evidences = append(evidences, m.refine(query, hit.Item, hit.Similarity))
	}
	return evidences, nil
}

func (m *Matcher) encode(ctx context.Context, text string) ([]float32, error) {
	if m.cache != nil {
		return m.cache.GetOrCompute(ctx, text, m.enc)
	}
	return m.enc.Encode(ctx, text)
}

// refine computes the remaining signals for one candidate and fuses them.
func (m *Matcher) refine(query types.QueryItem, item *types.ReferenceItem, semantic float64) types.CandidateEvidence {
	if semantic < 0 {
		semantic = 0
	}
	if semantic > 1 {
		semantic = 1
	}

	fuzzyRaw := m.opts.Fuzzy(query.Description, item.Description)
	codeMatch := scoring.CodeMatch(query.Code, item.Code)
	unitMatch := scoring.UnitMatch(query.Unit, item.Unit)

	return types.CandidateEvidence{
		ReferenceCode:        item.Code,
		ReferenceDescription: item.Description,
		SemanticScore:        semantic,
		FuzzyScore:           fuzzyRaw,
		CombinedScore:        scoring.Fuse(semantic, fuzzyRaw, codeMatch, unitMatch, m.opts.Weights),
		Method:               scoring.Method(semantic, fuzzyRaw, codeMatch),
	}
}

// fuzzyOnly scores the whole corpus with the semantic signal pinned to the
// normalized fuzzy score, then keeps the top-k. This is the provider-failure
// degradation path.
func (m *Matcher) fuzzyOnly(query types.QueryItem) []types.CandidateEvidence {
	evidences := make([]types.CandidateEvidence, 0, len(m.corpus))
	for i := range m.corpus {
		item := &m.corpus[i]
		fuzzyRaw := m.opts.Fuzzy(query.Description, item.Description)
		semantic := fuzzyRaw / 100.0
		codeMatch := scoring.CodeMatch(query.Code, item.Code)
		unitMatch := scoring.UnitMatch(query.Unit, item.Unit)

		evidences = append(evidences, types.CandidateEvidence{
			ReferenceCode:        item.Code,
			ReferenceDescription: item.Description,
			SemanticScore:        semantic,
			FuzzyScore:           fuzzyRaw,
			CombinedScore:        scoring.Fuse(semantic, fuzzyRaw, codeMatch, unitMatch, m.opts.Weights),
			Method:               scoring.Method(semantic, fuzzyRaw, codeMatch),
		})
	}

	sort.SliceStable(evidences, func(i, j int) bool {
		return evidences[i].CombinedScore > evidences[j].CombinedScore
	})
	if len(evidences) > m.opts.TopK {
		evidences = evidences[:m.opts.TopK]
	}
	return evidences
}

// classify ranks the evidence and applies the decision procedure. The match
// threshold comparison is inclusive: a score exactly at the threshold counts.
func (m *Matcher) classify(query types.QueryItem, evidences []types.CandidateEvidence) types.MatchResult {
	result := types.MatchResult{
		QueryID:          query.ID,
		QueryCode:        query.Code,
		QueryDescription: query.Description,
	}

	// Stable sort keeps retrieval order for equal scores.
	sort.SliceStable(evidences, func(i, j int) bool {
		return evidences[i].CombinedScore > evidences[j].CombinedScore
	})

	if len(evidences) == 0 {
		result.Status = types.StatusNoMatch
		result.Confidence = 0.0
		return result
	}

	best := evidences[0]
	result.Best = &best
	result.Confidence = best.CombinedScore
	if len(evidences) > 1 {
		end := 1 + maxAlternatives
		if end > len(evidences) {
			end = len(evidences)
		}
		result.Alternatives = append([]types.CandidateEvidence(nil), evidences[1:end]...)
	}

	switch {
	case best.CombinedScore >= m.opts.MatchThreshold:
		if len(evidences) > 1 && best.CombinedScore-evidences[1].CombinedScore < m.opts.AmbiguityGap {
			result.Status = types.StatusAmbiguous
		} else {
			result.Status = types.StatusMatched
		}
	case best.CombinedScore >= m.opts.ReviewFloor:
		result.Status = types.StatusManualReview
	default:
		// Best stays attached as rejected evidence for traceability.
		result.Status = types.StatusNoMatch
	}

	return result
}
