// Package vecindex holds the reference corpus vectors and answers top-k
// similarity queries.
//
// Two backends exist: an exact linear scan, always available, and an
// approximate Qdrant-backed index for large corpora. The backend is chosen
// once at build time; a built index is immutable and safe for concurrent
// searches without locking. Similarity is the dot product of unit vectors,
// i.e. cosine similarity.
package vecindex

import (
	"context"
	"errors"
	"fmt"
	"log"

	"specmatch/internal/embedder"
	"specmatch/pkg/types"
)

// Configuration errors surfaced at build time.
var (
	ErrEmptyVector       = errors.New("reference item has no embedding")
	ErrDimensionMismatch = errors.New("embedding dimensions are not uniform")
)

// Hit is one search result: a reference item with its similarity to the
// query and its position in the original corpus. Position is the
// deterministic tie-breaker for equal similarities.
type Hit struct {
	Position   int
	Item       *types.ReferenceItem
	Similarity float64
}

// Index answers top-k similarity queries over a built corpus.
type Index interface {
	// Search returns up to k hits ordered by descending similarity,
	// ties by corpus position.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// Len returns the corpus size.
	Len() int

	// Dimension returns the embedding dimension.
	Dimension() int

	// Backend names the active backend for logging ("exact" or "qdrant").
	Backend() string

	// Close releases backend resources.
	Close() error
}

// Options controls backend selection at build time.
type Options struct {
	// QdrantAddr is the host:port of a Qdrant instance. Empty disables the
	// approximate backend entirely.
	QdrantAddr string

	// Collection is the Qdrant collection name. Defaults to "specmatch".
	Collection string

	// ApproxThreshold is the corpus size above which the approximate
	// backend is preferred. Zero means the default of 1000.
	ApproxThreshold int
}

// DefaultApproxThreshold is the corpus size above which an approximate
// backend pays off over a linear scan.
const DefaultApproxThreshold = 1000

// Build validates the corpus, normalizes all embeddings to unit length and
// constructs an index. The approximate backend is used only when the corpus
// exceeds the threshold and an address is configured; if its construction
// fails the build logs the reason and falls back to the exact scan; an
// unavailable Qdrant is never fatal.
func Build(ctx context.Context, items []types.ReferenceItem, opts Options) (Index, error) {
	dim, err := validateCorpus(items)
	if err != nil {
		return nil, err
	}

	for i := range items {
		embedder.Normalize(items[i].Embedding)
	}

	threshold := opts.ApproxThreshold
	if threshold <= 0 {
		threshold = DefaultApproxThreshold
	}

	if opts.QdrantAddr != "" && len(items) > threshold {
		idx, err := newQdrantIndex(ctx, items, dim, opts)
		if err == nil {
			log.Printf("vecindex: approximate backend ready (%d vectors, qdrant at %s)", len(items), opts.QdrantAddr)
			return idx, nil
		}
		log.Printf("vecindex: approximate backend unavailable, falling back to exact scan: %v", err)
	}

	return newExactIndex(items, dim), nil
}

// validateCorpus checks every embedding is present and of uniform dimension.
// An empty corpus is valid and yields a zero-dimension index that matches
// nothing.
func validateCorpus(items []types.ReferenceItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	dim := len(items[0].Embedding)
	if dim == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyVector, items[0].Code)
	}
	for i := range items {
		if len(items[i].Embedding) != dim {
			return 0, fmt.Errorf("%w: %s has %d, expected %d",
				ErrDimensionMismatch, items[i].Code, len(items[i].Embedding), dim)
		}
	}
	return dim, nil
}
