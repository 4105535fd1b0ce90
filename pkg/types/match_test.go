package types

import "testing"

func validEvidence() CandidateEvidence {
	return CandidateEvidence{
		ReferenceCode:        "01.01",
		ReferenceDescription: "Excavación manual",
		SemanticScore:        0.91,
		FuzzyScore:           88,
		CombinedScore:        0.89,
		Method:               MethodSemantic,
	}
}

func TestCandidateEvidenceValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CandidateEvidence)
		wantErr error
	}{
		{"valid", func(e *CandidateEvidence) {}, nil},
		{"empty code", func(e *CandidateEvidence) { e.ReferenceCode = "" }, ErrEmptyCode},
		{"semantic above 1", func(e *CandidateEvidence) { e.SemanticScore = 1.2 }, ErrInvalidSemantic},
		{"semantic below 0", func(e *CandidateEvidence) { e.SemanticScore = -0.1 }, ErrInvalidSemantic},
		{"fuzzy above 100", func(e *CandidateEvidence) { e.FuzzyScore = 101 }, ErrInvalidFuzzy},
		{"combined above 1", func(e *CandidateEvidence) { e.CombinedScore = 1.01 }, ErrInvalidCombined},
		{"unknown method", func(e *CandidateEvidence) { e.Method = "guess" }, ErrInvalidMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := validEvidence()
			tt.mutate(&ev)
			if err := ev.Validate(); err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMatchResultValidate(t *testing.T) {
	best := validEvidence()

	tests := []struct {
		name    string
		result  MatchResult
		wantErr error
	}{
		{
			name: "matched with best",
			result: MatchResult{
				QueryID:    "q1",
				Status:     StatusMatched,
				Best:       &best,
				Confidence: best.CombinedScore,
			},
			wantErr: nil,
		},
		{
			name: "no match without best",
			result: MatchResult{
				QueryID: "q2",
				Status:  StatusNoMatch,
			},
			wantErr: nil,
		},
		{
			name: "no match with rejected best",
			result: MatchResult{
				QueryID:    "q3",
				Status:     StatusNoMatch,
				Best:       &best,
				Confidence: best.CombinedScore,
			},
			wantErr: nil,
		},
		{
			name: "matched without best",
			result: MatchResult{
				QueryID: "q4",
				Status:  StatusMatched,
			},
			wantErr: ErrMissingBest,
		},
		{
			name: "unknown status",
			result: MatchResult{
				QueryID: "q5",
				Status:  "MAYBE",
			},
			wantErr: ErrInvalidStatus,
		},
		{
			name: "confidence out of range",
			result: MatchResult{
				QueryID:    "q6",
				Status:     StatusNoMatch,
				Confidence: 1.5,
			},
			wantErr: ErrInvalidConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.result.Validate(); err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
