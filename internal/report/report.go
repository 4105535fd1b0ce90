// Package report renders a batch of match results into an XLSX workbook:
// one row per query with its best match, an evidence sheet with the full
// scoring breakdown, and a summary sheet with per-status counts.
package report

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"specmatch/pkg/types"
)

// ErrNoResults is returned when there is nothing to report.
var ErrNoResults = errors.New("no results to report")

const (
	sheetResults  = "Resultados"
	sheetEvidence = "Evidencia"
	sheetSummary  = "Resumen"
)

// Write renders the results to an XLSX file at path.
func Write(path string, results []types.MatchResult) error {
	if len(results) == 0 {
		return ErrNoResults
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeResultsSheet(f, results); err != nil {
		return err
	}
	if err := writeEvidenceSheet(f, results); err != nil {
		return err
	}
	if err := writeSummarySheet(f, results); err != nil {
		return err
	}

	// The default sheet becomes the results sheet; drop the placeholder.
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func writeResultsSheet(f *excelize.File, results []types.MatchResult) error {
	defaultSheet := f.GetSheetName(0)
	if err := f.SetSheetName(defaultSheet, sheetResults); err != nil {
		return fmt.Errorf("rename results sheet: %w", err)
	}

	header := []interface{}{
		"ID", "Código consulta", "Descripción consulta",
		"Estado", "Código referencia", "Descripción referencia",
		"Confianza", "Método", "Duración (ms)",
	}
	if err := setRow(f, sheetResults, 1, header); err != nil {
		return err
	}

	for i, res := range results {
		row := []interface{}{
			res.QueryID, res.QueryCode, res.QueryDescription,
			string(res.Status), "", "",
			round3(res.Confidence), "", res.Elapsed.Milliseconds(),
		}
		if res.Best != nil {
			row[4] = res.Best.ReferenceCode
			row[5] = res.Best.ReferenceDescription
			row[7] = string(res.Best.Method)
		}
		if err := setRow(f, sheetResults, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeEvidenceSheet(f *excelize.File, results []types.MatchResult) error {
	if _, err := f.NewSheet(sheetEvidence); err != nil {
		return fmt.Errorf("create evidence sheet: %w", err)
	}

	header := []interface{}{
		"ID consulta", "Posición", "Código referencia", "Descripción referencia",
		"Semántico", "Difuso", "Combinado", "Método",
	}
	if err := setRow(f, sheetEvidence, 1, header); err != nil {
		return err
	}

	rowNum := 2
	for _, res := range results {
		for rank, e := range evidenceOf(res) {
			row := []interface{}{
				res.QueryID, rank + 1, e.ReferenceCode, e.ReferenceDescription,
				round3(e.SemanticScore), round3(e.FuzzyScore), round3(e.CombinedScore), string(e.Method),
			}
			if err := setRow(f, sheetEvidence, rowNum, row); err != nil {
				return err
			}
			rowNum++
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, results []types.MatchResult) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	counts := make(map[types.MatchStatus]int)
	for _, res := range results {
		counts[res.Status]++
	}

	total := len(results)
	matched := counts[types.StatusMatched]

	rows := [][]interface{}{
		{"Estado", "Cantidad", "Porcentaje"},
		{string(types.StatusMatched), counts[types.StatusMatched], percent(counts[types.StatusMatched], total)},
		{string(types.StatusAmbiguous), counts[types.StatusAmbiguous], percent(counts[types.StatusAmbiguous], total)},
		{string(types.StatusManualReview), counts[types.StatusManualReview], percent(counts[types.StatusManualReview], total)},
		{string(types.StatusNoMatch), counts[types.StatusNoMatch], percent(counts[types.StatusNoMatch], total)},
		{},
		{"Total", total, ""},
		{"Tasa de acierto", "", percent(matched, total)},
	}
	for i, row := range rows {
		if err := setRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

// evidenceOf flattens best plus alternatives in rank order.
func evidenceOf(res types.MatchResult) []types.CandidateEvidence {
	if res.Best == nil {
		return nil
	}
	evidence := make([]types.CandidateEvidence, 0, 1+len(res.Alternatives))
	evidence = append(evidence, *res.Best)
	evidence = append(evidence, res.Alternatives...)
	return evidence
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cellRef, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cellRef, &values); err != nil {
		return fmt.Errorf("write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}

func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}
