package scoring

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidWeights is returned when a weight set does not sum to 1.0.
var ErrInvalidWeights = errors.New("scoring weights must sum to 1.0")

// weightTolerance absorbs floating point drift when validating the sum.
const weightTolerance = 0.01

// Weights controls how the four match signals blend into the combined score.
// A Weights value is only obtainable through NewWeights or DefaultWeights,
// so consumers never re-validate at use time.
type Weights struct {
	Semantic  float64
	Fuzzy     float64
	CodeMatch float64
	UnitMatch float64
}

// NewWeights validates and returns a weight set. The four weights must be
// non-negative and sum to 1.0 within tolerance; anything else is a
// configuration error and fails fast.
func NewWeights(semantic, fuzzy, codeMatch, unitMatch float64) (Weights, error) {
	for _, w := range []float64{semantic, fuzzy, codeMatch, unitMatch} {
		if w < 0 {
			return Weights{}, fmt.Errorf("%w: negative weight %.3f", ErrInvalidWeights, w)
		}
	}

	total := semantic + fuzzy + codeMatch + unitMatch
	if math.Abs(total-1.0) > weightTolerance {
		return Weights{}, fmt.Errorf("%w: sum is %.3f", ErrInvalidWeights, total)
	}

	return Weights{
		Semantic:  semantic,
		Fuzzy:     fuzzy,
		CodeMatch: codeMatch,
		UnitMatch: unitMatch,
	}, nil
}

// DefaultWeights returns the production weighting: semantic similarity
// dominates, lexical similarity refines, code and unit agreement nudge.
func DefaultWeights() Weights {
	return Weights{
		Semantic:  0.7,
		Fuzzy:     0.2,
		CodeMatch: 0.05,
		UnitMatch: 0.05,
	}
}
