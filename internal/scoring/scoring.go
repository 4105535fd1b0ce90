// Package scoring fuses the four match signals (semantic, fuzzy, code, unit)
// into one normalized score and tags each candidate with the dominant method.
package scoring

import (
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"specmatch/pkg/types"
)

// FuzzyFunc is a pluggable string similarity returning a score in [0, 100].
type FuzzyFunc func(a, b string) float64

// TokenSetRatio is the default fuzzy scorer. Token-set comparison is robust
// against word reordering and partial overlap, which is how catalogue
// descriptions usually differ from scanned ones.
func TokenSetRatio(a, b string) float64 {
	return float64(fuzzy.TokenSetRatio(a, b))
}

// CodeMatch returns 1.0 iff both codes are present and equal after case and
// whitespace normalization, else 0.0. It is symmetric.
func CodeMatch(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}

	na := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(a)), " ", "")
	nb := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(b)), " ", "")
	if na == nb {
		return 1.0
	}
	return 0.0
}

// compatibleUnits lists unit pairs that mean the same quantity but are
// spelled differently across catalogues. Checked in both directions.
var compatibleUnits = [][2]string{
	{"m2", "m²"}, {"m^2", "m²"},
	{"m3", "m³"}, {"m^3", "m³"},
	{"kg", "kilogramo"}, {"kgs", "kg"},
	{"u", "und"}, {"u", "unidad"}, {"und", "unidad"},
}

// UnitMatch scores unit agreement: 1.0 for an exact case-insensitive match,
// 0.5 for a known compatible pair, 0.0 otherwise or when either side is
// absent.
func UnitMatch(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}

	ua := strings.ToLower(strings.TrimSpace(a))
	ub := strings.ToLower(strings.TrimSpace(b))
	if ua == ub {
		return 1.0
	}

	for _, pair := range compatibleUnits {
		if (ua == pair[0] && ub == pair[1]) || (ua == pair[1] && ub == pair[0]) {
			return 0.5
		}
	}
	return 0.0
}

// Fuse combines the four signals into one score in [0, 1]. fuzzyRaw is on
// the [0, 100] scale and is normalized before weighting. Given fixed
// weights the result is a deterministic, monotone function of its inputs.
func Fuse(semantic, fuzzyRaw, codeMatch, unitMatch float64, w Weights) float64 {
	return w.Semantic*semantic +
		w.Fuzzy*(fuzzyRaw/100.0) +
		w.CodeMatch*codeMatch +
		w.UnitMatch*unitMatch
}

// dominanceMargin is how far one normalized signal must exceed the other
// before the evidence is tagged as that signal rather than hybrid.
const dominanceMargin = 0.1

// Method picks the descriptive tag for an evidence entry. An exact code hit
// wins outright; otherwise whichever of semantic and normalized fuzzy leads
// by more than the margin, else hybrid.
func Method(semantic, fuzzyRaw, codeMatch float64) types.MatchMethod {
	if codeMatch >= 0.9 {
		return types.MethodCode
	}

	fuzzyNorm := fuzzyRaw / 100.0
	switch {
	case semantic > fuzzyNorm+dominanceMargin:
		return types.MethodSemantic
	case fuzzyNorm > semantic+dominanceMargin:
		return types.MethodFuzzy
	default:
		return types.MethodHybrid
	}
}
