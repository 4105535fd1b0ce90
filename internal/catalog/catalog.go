// Package catalog loads the reference corpus from tabular sources (CSV or
// XLSX) and attaches embeddings to it.
//
// Loading is tolerant: malformed rows are logged and skipped, never fatal.
// Codes are normalized on the way in and become the canonical dedup key, so
// the matcher and the deduplication step agree on identity.
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"specmatch/internal/embedder"
	"specmatch/internal/normalize"
	"specmatch/pkg/types"
)

// Loader errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported catalogue format")
	ErrNoRows            = errors.New("catalogue has no data rows")
)

// columnMap resolves which cell feeds which field. A negative index means
// the column is absent.
type columnMap struct {
	code, description, unit, category int
}

var headerAliases = map[string]string{
	"code": "code", "codigo": "code", "código": "code", "cod": "code",
	"description": "description", "descripcion": "description", "descripción": "description", "desc": "description",
	"unit": "unit", "unidad": "unit", "und": "unit", "um": "unit",
	"category": "category", "categoria": "category", "categoría": "category",
	"chapter": "category", "capitulo": "category", "capítulo": "category",
}

// Load reads a reference catalogue, dispatching on the file extension.
// Supported: .csv, .xlsx.
func Load(path string) ([]types.ReferenceItem, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".xlsx":
		return LoadXLSX(path, "")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadCSV reads a comma-separated catalogue. The first row may be a header;
// without one, columns are taken positionally as code, description, unit,
// category.
func LoadCSV(path string) ([]types.ReferenceItem, error) {
	rows, err := readCSVRows(path)
	if err != nil {
		return nil, err
	}
	return buildItems(path, rows)
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalogue: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalogue %s: %w", path, err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// LoadXLSX reads a spreadsheet catalogue. An empty sheet name selects the
// first sheet in the workbook.
func LoadXLSX(path, sheet string) ([]types.ReferenceItem, error) {
	rows, err := readXLSXRows(path, sheet)
	if err != nil {
		return nil, err
	}
	return buildItems(path, rows)
}

func readXLSXRows(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

// buildItems converts raw rows into validated, normalized reference items.
// Rows that cannot become a valid item are skipped with a warning, and later
// duplicates of an already-seen code are dropped.
func buildItems(source string, rows [][]string) ([]types.ReferenceItem, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRows, source)
	}

	cols, hasHeader := detectColumns(rows[0])
	if hasHeader {
		rows = rows[1:]
	}

	items := make([]types.ReferenceItem, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	skipped := 0

	for i, row := range rows {
		item, err := rowToItem(row, cols)
		if err != nil {
			skipped++
			log.Printf("catalog: skipping row %d of %s: %v", i+1, source, err)
			continue
		}
		if seen[item.Code] {
			skipped++
			log.Printf("catalog: skipping row %d of %s: duplicate code %s", i+1, source, item.Code)
			continue
		}
		seen[item.Code] = true
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s (all %d rows skipped)", ErrNoRows, source, skipped)
	}
	if skipped > 0 {
		log.Printf("catalog: loaded %d items from %s (%d rows skipped)", len(items), source, skipped)
	}
	return items, nil
}

// detectColumns inspects the first row. If any cell is a known header alias
// the row is treated as a header and columns are mapped by name; otherwise
// the layout is positional and the row is data.
func detectColumns(first []string) (columnMap, bool) {
	cols := columnMap{code: 0, description: 1, unit: 2, category: 3}

	named := columnMap{code: -1, description: -1, unit: -1, category: -1}
	matched := false
	for i, cell := range first {
		field, ok := headerAliases[strings.ToLower(strings.TrimSpace(cell))]
		if !ok {
			continue
		}
		matched = true
		switch field {
		case "code":
			named.code = i
		case "description":
			named.description = i
		case "unit":
			named.unit = i
		case "category":
			named.category = i
		}
	}

	if matched {
		return named, true
	}
	return cols, false
}

func rowToItem(row []string, cols columnMap) (types.ReferenceItem, error) {
	item := types.ReferenceItem{
		Code:        normalize.Code(cell(row, cols.code)),
		Description: strings.TrimSpace(cell(row, cols.description)),
		Unit:        normalize.Unit(cell(row, cols.unit)),
		Category:    strings.TrimSpace(cell(row, cols.category)),
	}
	if err := item.Validate(); err != nil {
		return types.ReferenceItem{}, err
	}
	return item, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// LoadQueries reads query items from a tabular file using the same column
// conventions as the catalogue. Unlike reference rows, a query only needs a
// description; codes and units are optional hints. IDs are assigned by row
// order.
func LoadQueries(path string) ([]types.QueryItem, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRows, path)
	}

	cols, hasHeader := detectColumns(rows[0])
	if hasHeader {
		rows = rows[1:]
	}

	queries := make([]types.QueryItem, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		q := types.QueryItem{
			ID:          fmt.Sprintf("q%04d", len(queries)+1),
			Description: strings.TrimSpace(cell(row, cols.description)),
			Code:        normalize.Code(cell(row, cols.code)),
			Unit:        normalize.Unit(cell(row, cols.unit)),
		}
		if err := q.Validate(); err != nil {
			skipped++
			log.Printf("catalog: skipping query row %d of %s: %v", i+1, path, err)
			continue
		}
		queries = append(queries, q)
	}

	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: %s (all %d rows skipped)", ErrNoRows, path, skipped)
	}
	if skipped > 0 {
		log.Printf("catalog: loaded %d queries from %s (%d rows skipped)", len(queries), path, skipped)
	}
	return queries, nil
}

// readRows loads the raw cells of a tabular file, dispatching on extension.
func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSVRows(path)
	case ".xlsx":
		return readXLSXRows(path, "")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// EmbedCorpus fills the Embedding field of every item in place using the
// provider's batch call. Vectors are normalized to unit length so the index
// can treat dot product as cosine similarity.
func EmbedCorpus(ctx context.Context, enc embedder.Embedder, items []types.ReferenceItem) error {
	if len(items) == 0 {
		return nil
	}

	texts := make([]string, len(items))
	for i := range items {
		texts[i] = items[i].Description
	}

	vectors, err := enc.EncodeBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed corpus: %w", err)
	}
	if len(vectors) != len(items) {
		return fmt.Errorf("embed corpus: got %d vectors for %d items", len(vectors), len(items))
	}

	for i := range items {
		items[i].Embedding = embedder.Normalize(vectors[i])
	}
	return nil
}
