package types

import "errors"

// Domain errors for type validation
var (
	ErrEmptyDescription  = errors.New("description cannot be empty")
	ErrEmptyCode         = errors.New("reference code cannot be empty")
	ErrInvalidSemantic   = errors.New("semantic score must be between 0 and 1")
	ErrInvalidFuzzy      = errors.New("fuzzy score must be between 0 and 100")
	ErrInvalidCombined   = errors.New("combined score must be between 0 and 1")
	ErrInvalidMethod     = errors.New("unknown match method")
	ErrInvalidStatus     = errors.New("unknown match status")
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
	ErrMissingBest       = errors.New("status requires a best candidate")
)
