package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rnaxplore/outan/internal/results"
)

func fraserUnit(t *testing.T) *results.SampleUnit {
	t.Helper()
	table := results.NewTable(results.ToolFraser, []string{
		"hgncSymbol", "padjust", "sampleID", "seqnames", "start", "end",
		"gene_name", "gene_id", "chrom", "pLI", "syn_z", "Mode_Of_Inheritance",
	})
	require.NoError(t, table.AppendRow([]string{
		"KRAS", "1e-05", "23D1192.HOL.Hay", "chr12", "25209000", "25210000",
		"KRAS", "ENSG00000133703", "chr12", "0.99", "0.5", "MONOALLELIC",
	}))
	require.NoError(t, table.AppendRow([]string{
		"NOSYM", "0.04", "23D1192.HOL.Hay", "chrX", "1000", "2000",
		"", "", "chrX", "", "", "",
	}))
	return &results.SampleUnit{Tool: results.ToolFraser, Sample: "23D1192.HOL.Hay", Table: table}
}

func TestWriteUnit(t *testing.T) {
	outDir := t.TempDir()
	w, err := NewWriter(outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, PerSampleDirName), w.Dir())

	path, err := w.WriteUnit(fraserUnit(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Dir(), "23D1192.fraser.tab"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)

	// Ordered intersection: hgncSymbol and syn_z are dropped, the rest
	// follow the fixed output order regardless of table order.
	assert.Equal(t,
		"seqnames\tstart\tend\tsampleID\tpadjust\tgene_name\tgene_id\tchrom\tpLI\tMode_Of_Inheritance",
		lines[0])
	assert.Equal(t,
		"chr12\t25209000\t25210000\t23D1192.HOL.Hay\t1e-05\tKRAS\tENSG00000133703\tchr12\t0.99\tMONOALLELIC",
		lines[1])
	assert.Equal(t,
		"chrX\t1000\t2000\t23D1192.HOL.Hay\t0.04\t\t\tchrX\t\t",
		lines[2])

	// No temp file survives a successful write.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteUnitRerunIdentical(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	path, err := w.WriteUnit(fraserUnit(t))
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	path2, err := w.WriteUnit(fraserUnit(t))
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWriteUnitOutriderName(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	table := results.NewTable(results.ToolOutrider, []string{"gene_id", "sampleID", "padjust"})
	require.NoError(t, table.AppendRow([]string{"ENSG00000133703.14", "24D0007", "0.01"}))
	unit := &results.SampleUnit{Tool: results.ToolOutrider, Sample: "24D0007", Table: table}

	path, err := w.WriteUnit(unit)
	require.NoError(t, err)
	assert.Equal(t, "24D0007.outrider.tab", filepath.Base(path))
}

func TestWriteUnitSanitizesCells(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	table := results.NewTable(results.ToolOutrider, []string{"gene_id", "sampleID", "Phenotypes"})
	require.NoError(t, table.AppendRow([]string{"ENSG1", "S1", "odd\tphenotype\nname"}))
	unit := &results.SampleUnit{Tool: results.ToolOutrider, Sample: "S1", Table: table}

	path, err := w.WriteUnit(unit)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ENSG1\tS1\todd phenotype name", lines[1])
}

func TestWriteUnitNoWritableColumns(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	table := results.NewTable(results.ToolFraser, []string{"unrelated"})
	unit := &results.SampleUnit{Tool: results.ToolFraser, Sample: "S1", Table: table}
	_, err = w.WriteUnit(unit)
	assert.Error(t, err)
}
