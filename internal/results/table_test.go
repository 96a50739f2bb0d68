package results

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFraserTSV = `seqnames	start	end	width	strand	sampleID	type	pValue	padjust	deltaPsi	hgncSymbol
chr12	25205246	25250929	45684	-	23D1192.HOL.Hay	psi5	1.2e-09	3.4e-05	0.42	KRAS
chr7	140719327	140924929	205603	+	24D0007	psi3	0.0001	0.04	-0.31	BRAF
`

const sampleOutriderTSV = `geneID	sampleID	pValue	padjust	zScore	l2fc	rawcounts
ENSG00000133703.14	23D1192.HOL.Hay	1.2e-09	3.4e-05	-5.1	-2.3	12
ENSG00000157764.14	23D1192.HOL.Hay	0.0001	0.04	3.2	1.1	250
ENSG00000133703.14	24D0007	0.5	0.9	0.3	0.1	88
`

func TestReadFraser(t *testing.T) {
	table, err := Read(strings.NewReader(sampleFraserTSV), ToolFraser)
	require.NoError(t, err)

	assert.Equal(t, ToolFraser, table.Tool)
	assert.Equal(t, []string{"seqnames", "start", "end", "width", "strand", "sampleID", "type", "pValue", "padjust", "deltaPsi", "hgncSymbol"}, table.Cols)
	require.Equal(t, 2, table.NumRows())
	assert.Equal(t, "chr12", table.Value(0, "seqnames"))
	assert.Equal(t, "KRAS", table.Value(0, "hgncSymbol"))
	assert.Equal(t, "24D0007", table.Value(1, "sampleID"))
}

func TestReadOutriderDropsUnnamedIndex(t *testing.T) {
	const indexed = `	geneID	sampleID	pValue	padjust	zScore
1	ENSG00000133703.14	S1	0.1	0.01	2.5
2	ENSG00000157764.14	S2	0.2	0.02	-3.1
`
	table, err := Read(strings.NewReader(indexed), ToolOutrider)
	require.NoError(t, err)

	assert.Equal(t, []string{"geneID", "sampleID", "pValue", "padjust", "zScore"}, table.Cols)
	require.Equal(t, 2, table.NumRows())
	assert.Equal(t, "ENSG00000133703.14", table.Value(0, "geneID"))
	assert.Equal(t, "-3.1", table.Value(1, "zScore"))
}

func TestReadOutriderDropsForeignIndexName(t *testing.T) {
	const indexed = `Unnamed: 0	geneID	sampleID	pValue	padjust
0	ENSG00000133703.14	S1	0.1	0.01
`
	table, err := Read(strings.NewReader(indexed), ToolOutrider)
	require.NoError(t, err)
	assert.Equal(t, []string{"geneID", "sampleID", "pValue", "padjust"}, table.Cols)
	assert.Equal(t, "ENSG00000133703.14", table.Value(0, "geneID"))
}

func TestReadOutriderKeepsNativeHeader(t *testing.T) {
	table, err := Read(strings.NewReader(sampleOutriderTSV), ToolOutrider)
	require.NoError(t, err)
	assert.Equal(t, "geneID", table.Cols[0])
	require.Equal(t, 3, table.NumRows())
}

func TestReadFraserNeverDropsIndex(t *testing.T) {
	// The index heuristic is specific to OUTRIDER exports.
	const odd = `rowid	sampleID	padjust
x	S1	0.01
`
	table, err := Read(strings.NewReader(odd), ToolFraser)
	require.NoError(t, err)
	assert.Equal(t, []string{"rowid", "sampleID", "padjust"}, table.Cols)
}

func TestReadPadsShortRows(t *testing.T) {
	const short = `sampleID	padjust	note
S1	0.01
`
	table, err := Read(strings.NewReader(short), ToolFraser)
	require.NoError(t, err)
	assert.Equal(t, "", table.Value(0, "note"))
}

func TestReadRejectsWideRows(t *testing.T) {
	const wide = `sampleID	padjust
S1	0.01	extra
`
	_, err := Read(strings.NewReader(wide), ToolFraser)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadRequiresSampleColumn(t *testing.T) {
	const headless = `seqnames	start	end	padjust
chr1	100	200	0.01
`
	_, err := Read(strings.NewReader(headless), ToolFraser)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sampleID")
}

func TestReadEmpty(t *testing.T) {
	_, err := Read(strings.NewReader(""), ToolFraser)
	assert.Error(t, err)
}

func TestReadTableGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outrider_results.tsv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(sampleOutriderTSV))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	table, err := ReadTable(path, ToolOutrider)
	require.NoError(t, err)
	assert.Equal(t, 3, table.NumRows())
}

func TestAddCol(t *testing.T) {
	table, err := Read(strings.NewReader(sampleOutriderTSV), ToolOutrider)
	require.NoError(t, err)

	table.AddCol("gene_name")
	assert.True(t, table.HasCol("gene_name"))
	assert.Equal(t, "", table.Value(0, "gene_name"))

	table.SetValue(0, "gene_name", "KRAS")
	assert.Equal(t, "KRAS", table.Value(0, "gene_name"))

	// Re-adding is a no-op and keeps values.
	table.AddCol("gene_name")
	assert.Equal(t, "KRAS", table.Value(0, "gene_name"))
}

func TestRenameCol(t *testing.T) {
	table, err := Read(strings.NewReader(sampleOutriderTSV), ToolOutrider)
	require.NoError(t, err)

	require.True(t, table.RenameCol("geneID", "gene_id"))
	assert.False(t, table.HasCol("geneID"))
	assert.Equal(t, "ENSG00000133703.14", table.Value(0, "gene_id"))
	assert.False(t, table.RenameCol("geneID", "again"))
}

func TestCloneSchema(t *testing.T) {
	table, err := Read(strings.NewReader(sampleOutriderTSV), ToolOutrider)
	require.NoError(t, err)

	clone := table.CloneSchema()
	assert.Equal(t, table.Tool, clone.Tool)
	assert.Equal(t, table.Cols, clone.Cols)
	assert.Equal(t, 0, clone.NumRows())

	// The clone owns its schema.
	require.True(t, clone.RenameCol("geneID", "gene_id"))
	assert.True(t, table.HasCol("geneID"))
}

func TestAppendRow(t *testing.T) {
	table := NewTable(ToolFraser, []string{"a", "b"})
	require.NoError(t, table.AppendRow([]string{"1", "2"}))
	assert.Error(t, table.AppendRow([]string{"1"}))
}

func TestValueUnknownColumn(t *testing.T) {
	table := NewTable(ToolFraser, []string{"a"})
	require.NoError(t, table.AppendRow([]string{"1"}))
	assert.Equal(t, "", table.Value(0, "nope"))
	assert.Equal(t, "", table.Value(5, "a"))
}
