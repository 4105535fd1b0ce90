// Package types provides shared type definitions for the catalogue matching
// pipeline.
//
// This package defines the domain types exchanged between the corpus loader,
// the matcher and the reporting layer: reference items, query items,
// per-candidate evidence and classified match results.
//
// # Core Types
//
// ReferenceItem is one row of the canonical reference catalogue:
//
//	item := types.ReferenceItem{
//	    Code:        "01.01",
//	    Description: "Excavación manual en terreno natural",
//	    Unit:        "m3",
//	}
//
// QueryItem is an extracted, not-yet-reconciled line item:
//
//	query := types.QueryItem{
//	    ID:          "RUB_01_01_P3",
//	    Description: "Excavación manual a mano",
//	    Unit:        "m3",
//	}
//
// # Match Results
//
// MatchResult carries the classification for one query together with the
// best candidate and up to three ranked alternatives:
//
//	result := matcher.Match(ctx, query)
//	switch result.Status {
//	case types.StatusMatched:      // confident single winner
//	case types.StatusAmbiguous:    // top two candidates too close
//	case types.StatusManualReview: // best score in the review band
//	case types.StatusNoMatch:      // nothing usable
//	}
//
// Scores on CandidateEvidence are normalized: SemanticScore and CombinedScore
// to [0, 1], FuzzyScore to [0, 100].
//
// # Validation
//
// Evidence and results implement Validate to ensure score ranges and
// structural invariants before they reach the reporting layer:
//
//	if err := result.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package types
