// Package normalize provides the shared text normalization rules for
// reference codes and measurement units.
//
// The same rules produce the canonical dedup key and the canonical match
// key, so the corpus loader and any deduplication consumer must both go
// through this package.
package normalize

import (
	"regexp"
	"strings"
)

var (
	// OCR digit confusions inside numeric context: O->0, l/I->1.
	ocrLeadingO  = regexp.MustCompile(`\bO(\d)`)
	ocrInnerO    = regexp.MustCompile(`(\d)O(\d)`)
	ocrInnerL    = regexp.MustCompile(`(\d)l(\d)`)
	ocrTrailingL = regexp.MustCompile(`(\d)l\b`)
	ocrInnerI    = regexp.MustCompile(`(\d)I(\d)`)

	separators = regexp.MustCompile(`[\-\s]+`)
	digitRun   = regexp.MustCompile(`\d+`)

	validCode = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){1,3}$`)
)

// Code normalizes a reference code to the canonical zero-padded dotted form,
// e.g. "1.1.1" -> "01.01.01", "O1-02-03" -> "01.02.03". Codes with fewer than
// two numeric levels are returned as scanned (trimmed, OCR-corrected) since
// there is nothing to pad against.
func Code(code string) string {
	code = fixOCRDigits(strings.TrimSpace(code))
	code = separators.ReplaceAllString(code, ".")

	parts := digitRun.FindAllString(code, -1)
	if len(parts) < 2 {
		return code
	}

	// Zero-pad each level to two digits, keep at most three levels.
	if len(parts) > 3 {
		parts = parts[:3]
	}
	for i, p := range parts {
		if len(p) < 2 {
			parts[i] = "0" + p
		}
	}
	return strings.Join(parts, ".")
}

// IsValidCode reports whether a code already has the dotted numeric shape
// (2-4 levels of 1-3 digits).
func IsValidCode(code string) bool {
	return validCode.MatchString(code)
}

// fixOCRDigits corrects the digit confusions scanners introduce into codes.
func fixOCRDigits(text string) string {
	text = ocrLeadingO.ReplaceAllString(text, "0$1")
	text = ocrInnerO.ReplaceAllString(text, "${1}0$2")
	text = ocrInnerL.ReplaceAllString(text, "${1}1$2")
	text = ocrTrailingL.ReplaceAllString(text, "${1}1")
	text = ocrInnerI.ReplaceAllString(text, "${1}1$2")
	return text
}

// unitSynonyms maps every known spelling to its canonical unit.
var unitSynonyms = map[string]string{
	// length
	"m": "m", "mt": "m", "mts": "m", "metro": "m", "metros": "m", "mtr": "m",
	"km": "km", "kilometro": "km", "kilometros": "km", "kms": "km",
	"cm": "cm", "centimetro": "cm", "centimetros": "cm", "cms": "cm",
	// area
	"m2": "m²", "m²": "m²", "m^2": "m²", "metro cuadrado": "m²", "metros cuadrados": "m²",
	"ha": "ha", "hectarea": "ha", "hectareas": "ha", "has": "ha",
	// volume
	"m3": "m³", "m³": "m³", "m^3": "m³", "metro cubico": "m³", "metros cubicos": "m³",
	"lt": "lt", "l": "lt", "litro": "lt", "litros": "lt", "lts": "lt",
	"gln": "gln", "gl": "gln", "galon": "gln", "galones": "gln", "gal": "gln",
	// weight
	"kg": "kg", "kilo": "kg", "kilogramo": "kg", "kilogramos": "kg", "kgs": "kg",
	"ton": "ton", "t": "ton", "tonelada": "ton", "toneladas": "ton", "tn": "ton",
	// count
	"u": "u", "und": "u", "un": "u", "unidad": "u", "unidades": "u", "c/u": "u",
	// global
	"gbl": "gbl", "glb": "gbl", "global": "gbl",
}

// Unit canonicalizes a measurement unit ("M2", "m^2", "metros cuadrados" all
// become "m²"). Unknown units are returned trimmed and lowercased.
func Unit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimSuffix(u, ".")
	if canonical, ok := unitSynonyms[u]; ok {
		return canonical
	}
	return u
}
