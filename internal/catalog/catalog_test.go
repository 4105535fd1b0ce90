package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"specmatch/internal/embedder"
	"specmatch/pkg/types"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSVWithHeader(t *testing.T) {
	path := writeCSV(t, `codigo,descripcion,unidad,categoria
1.1,Excavación manual,m3,Movimiento de tierras
1.2,Relleno compactado,M2,Movimiento de tierras
`)

	items, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "01.01", items[0].Code, "codes are zero-padded")
	assert.Equal(t, "Excavación manual", items[0].Description)
	assert.Equal(t, "m³", items[0].Unit, "units are canonicalized")
	assert.Equal(t, "Movimiento de tierras", items[0].Category)
	assert.Equal(t, "m²", items[1].Unit)
}

func TestLoadCSVPositionalWithoutHeader(t *testing.T) {
	path := writeCSV(t, `1.1,Excavación manual,m3
2.1,Hormigón armado,m3
`)

	items, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "01.01", items[0].Code)
	assert.Equal(t, "02.01", items[1].Code)
}

func TestLoadCSVSkipsMalformedRows(t *testing.T) {
	path := writeCSV(t, `codigo,descripcion,unidad
1.1,Excavación manual,m3
,Sin código,u
2.1,,m2
2.2,Hormigón armado,m3
`)

	items, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "01.01", items[0].Code)
	assert.Equal(t, "02.02", items[1].Code)
}

func TestLoadCSVDropsDuplicateCodes(t *testing.T) {
	// "1.1" and "01.01" normalize to the same key; the first row wins.
	path := writeCSV(t, `codigo,descripcion,unidad
1.1,Excavación manual,m3
01.01,Excavación duplicada,m3
`)

	items, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Excavación manual", items[0].Description)
}

func TestLoadCSVAllRowsSkipped(t *testing.T) {
	path := writeCSV(t, `codigo,descripcion
,
,
`)

	_, err := LoadCSV(path)
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"codigo", "descripcion", "unidad"},
		{"1.1", "Excavación manual", "m3"},
		{"3.1", "Mampostería de ladrillo", "m2"},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	items, err := LoadXLSX(path, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "01.01", items[0].Code)
	assert.Equal(t, "03.01", items[1].Code)
	assert.Equal(t, "m²", items[1].Unit)
}

func TestLoadDispatchesOnExtension(t *testing.T) {
	_, err := Load("catalog.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadQueries(t *testing.T) {
	path := writeCSV(t, `codigo,descripcion,unidad
1.1,Excavación a mano,m3
,Partida sin código,u
2.1,,m2
`)

	queries, err := LoadQueries(path)
	require.NoError(t, err)
	require.Len(t, queries, 2, "missing code is fine, missing description is not")

	assert.Equal(t, "q0001", queries[0].ID)
	assert.Equal(t, "01.01", queries[0].Code)
	assert.Equal(t, "m³", queries[0].Unit)

	assert.Equal(t, "q0002", queries[1].ID)
	assert.Empty(t, queries[1].Code)
	assert.Equal(t, "Partida sin código", queries[1].Description)
}

func TestEmbedCorpus(t *testing.T) {
	enc, err := embedder.New(embedder.Config{Provider: "local"})
	require.NoError(t, err)

	items := []types.ReferenceItem{
		{Code: "01.01", Description: "Excavación manual"},
		{Code: "01.02", Description: "Relleno compactado"},
	}

	require.NoError(t, EmbedCorpus(context.Background(), enc, items))

	for _, item := range items {
		require.Len(t, item.Embedding, enc.Dimension())
		var norm float64
		for _, v := range item.Embedding {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, norm, 1e-4, "embeddings come back unit length")
	}
	assert.NotEqual(t, items[0].Embedding, items[1].Embedding)
}

func TestEmbedCorpusEmpty(t *testing.T) {
	enc, err := embedder.New(embedder.Config{Provider: "local"})
	require.NoError(t, err)
	assert.NoError(t, EmbedCorpus(context.Background(), enc, nil))
}

type failingEmbedder struct{ embedder.Embedder }

func (failingEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func TestEmbedCorpusPropagatesProviderError(t *testing.T) {
	items := []types.ReferenceItem{{Code: "01.01", Description: "Excavación manual"}}
	err := EmbedCorpus(context.Background(), failingEmbedder{}, items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed corpus")
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open catalogue")
}
