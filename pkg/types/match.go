package types

import "time"

// MatchStatus classifies the outcome of matching one query item.
type MatchStatus string

const (
	// StatusMatched indicates a single confident winner at or above the
	// match threshold.
	StatusMatched MatchStatus = "MATCHED"

	// StatusAmbiguous indicates the top two candidates scored too close
	// together to pick a winner.
	StatusAmbiguous MatchStatus = "AMBIGUOUS"

	// StatusManualReview indicates the best score fell between the review
	// floor and the match threshold.
	StatusManualReview MatchStatus = "MANUAL_REVIEW"

	// StatusNoMatch indicates no usable candidate was found.
	StatusNoMatch MatchStatus = "NO_MATCH"
)

// MatchMethod tags which signal dominated a candidate's combined score.
// It is descriptive metadata for evidence tables and never feeds back into
// the score itself.
type MatchMethod string

const (
	MethodSemantic MatchMethod = "semantic"
	MethodFuzzy    MatchMethod = "fuzzy"
	MethodCode     MatchMethod = "code"
	MethodHybrid   MatchMethod = "hybrid"
)

// CandidateEvidence records the scoring breakdown for one (query, candidate)
// pair. Instances are immutable once built and ordered by CombinedScore
// descending, ties kept in retrieval order.
type CandidateEvidence struct {
	ReferenceCode        string
	ReferenceDescription string
	SemanticScore        float64 // cosine similarity, [0, 1]
	FuzzyScore           float64 // lexical ratio, [0, 100]
	CombinedScore        float64 // weighted fusion, [0, 1]
	Method               MatchMethod
}

// MatchResult is the classified outcome for one query item. It is created
// once per query and never mutated afterward.
type MatchResult struct {
	QueryID          string
	QueryCode        string
	QueryDescription string
	Status           MatchStatus
	// Best is the top-ranked candidate. It is nil only when no candidates
	// were retrieved at all; a NO_MATCH result with a low-scoring best
	// keeps that candidate attached as rejected evidence for traceability.
	Best         *CandidateEvidence
	Alternatives []CandidateEvidence // ranks 2-4, at most 3
	Confidence   float64             // best combined score, 0 when Best is nil
	Elapsed      time.Duration
}

// Validate checks score ranges and structural invariants of an evidence entry.
func (e *CandidateEvidence) Validate() error {
	if e.ReferenceCode == "" {
		return ErrEmptyCode
	}
	if e.SemanticScore < 0 || e.SemanticScore > 1 {
		return ErrInvalidSemantic
	}
	if e.FuzzyScore < 0 || e.FuzzyScore > 100 {
		return ErrInvalidFuzzy
	}
	if e.CombinedScore < 0 || e.CombinedScore > 1 {
		return ErrInvalidCombined
	}
	switch e.Method {
	case MethodSemantic, MethodFuzzy, MethodCode, MethodHybrid:
	default:
		return ErrInvalidMethod
	}
	return nil
}

// Validate checks the structural invariants of a match result.
func (m *MatchResult) Validate() error {
	switch m.Status {
	case StatusMatched, StatusAmbiguous, StatusManualReview, StatusNoMatch:
	default:
		return ErrInvalidStatus
	}

	if m.Confidence < 0 || m.Confidence > 1 {
		return ErrInvalidConfidence
	}

	// Every status except NO_MATCH needs a best candidate.
	if m.Best == nil && m.Status != StatusNoMatch {
		return ErrMissingBest
	}

	if m.Best != nil {
		if err := m.Best.Validate(); err != nil {
			return err
		}
	}

	for i := range m.Alternatives {
		if err := m.Alternatives[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}
