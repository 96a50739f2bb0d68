package results

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/ahmetb/go-linq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const matchFixtureTSV = `geneID	sampleID	padjust
ENSG1.1	23D1192.HOL.Hay	0.001
ENSG2.1	24D0007.PAR.Ctl	0.02
ENSG3.1	23D1192.HOL.Hay	0.04
ENSG4.1	25X0033	NA
ENSG5.1	25X0033	0.3
`

func matchFixture(t *testing.T) *Table {
	t.Helper()
	table, err := Read(strings.NewReader(matchFixtureTSV), ToolOutrider)
	require.NoError(t, err)
	return table
}

func TestLoadSampleList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.txt")
	require.NoError(t, os.WriteFile(path, []byte("23D1192\n\n  24D0007  \n23D1192\n"), 0o644))

	ids, err := LoadSampleList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"23D1192", "24D0007"}, ids)
}

func TestLoadSampleListEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n \n"), 0o644))

	_, err := LoadSampleList(path)
	assert.Error(t, err)
}

func TestDataSamplesFirstAppearanceOrder(t *testing.T) {
	table := matchFixture(t)
	assert.Equal(t, []string{"23D1192.HOL.Hay", "24D0007.PAR.Ctl", "25X0033"}, DataSamples(table))
}

func TestMatchSamplesExact(t *testing.T) {
	table := matchFixture(t)

	// Order follows the table, not the request.
	matched := MatchSamples(table, []string{"25X0033", "23D1192.HOL.Hay"}, MatchExact, nil)
	assert.Equal(t, []string{"23D1192.HOL.Hay", "25X0033"}, matched)
}

func TestMatchSamplesExactMissesPrefixes(t *testing.T) {
	table := matchFixture(t)
	matched := MatchSamples(table, []string{"23D1192"}, MatchExact, nil)
	assert.Empty(t, matched)
}

func TestMatchSamplesPartial(t *testing.T) {
	table := matchFixture(t)
	matched := MatchSamples(table, []string{"23D1192", "24D0007"}, MatchPartial, nil)
	assert.Equal(t, []string{"23D1192.HOL.Hay", "24D0007.PAR.Ctl"}, matched)
}

func TestMatchSamplesAll(t *testing.T) {
	table := matchFixture(t)
	matched := MatchSamples(table, nil, MatchAll, nil)
	assert.Equal(t, DataSamples(table), matched)
}

func TestMatchSamplesWarnsOnMissing(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	table := matchFixture(t)
	matched := MatchSamples(table, []string{"ZZ9999", "23D1192", "AA0001"}, MatchPartial, logger)
	assert.Equal(t, []string{"23D1192.HOL.Hay"}, matched)

	entries := logs.All()
	require.Len(t, entries, 1)
	raw := entries[0].ContextMap()["samples"].([]interface{})
	missing := make([]string, len(raw))
	for i, v := range raw {
		missing[i] = v.(string)
	}
	assert.Equal(t, []string{"AA0001", "ZZ9999"}, missing)
}

func TestParseMatchMode(t *testing.T) {
	mode, err := ParseMatchMode("partial")
	require.NoError(t, err)
	assert.Equal(t, MatchPartial, mode)

	_, err = ParseMatchMode("fuzzy")
	assert.Error(t, err)
}

func TestApplyPadjustCut(t *testing.T) {
	table := matchFixture(t)

	cut, err := ApplyPadjustCut(table, 0.05)
	require.NoError(t, err)

	// 0.3 is above the cut and NA never parses.
	var genes []string
	From(cut.Rows).SelectT(func(row []string) string { return row[0] }).ToSlice(&genes)
	assert.Equal(t, []string{"ENSG1.1", "ENSG2.1", "ENSG3.1"}, genes)
}

func TestApplyPadjustCutMissingColumn(t *testing.T) {
	table := NewTable(ToolOutrider, []string{"geneID", "sampleID"})
	_, err := ApplyPadjustCut(table, 0.05)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "padjust")
}

func TestPartition(t *testing.T) {
	table := matchFixture(t)
	cut, err := ApplyPadjustCut(table, 0.05)
	require.NoError(t, err)

	// 25X0033 lost all rows to the cut and yields no unit.
	units, err := Partition(cut, []string{"23D1192.HOL.Hay", "24D0007.PAR.Ctl", "25X0033"})
	require.NoError(t, err)
	require.Len(t, units, 2)

	var samples []string
	From(units).SelectT(func(u SampleUnit) string { return u.Sample }).ToSlice(&samples)
	assert.Equal(t, []string{"23D1192.HOL.Hay", "24D0007.PAR.Ctl"}, samples)

	first := units[0].Table
	require.Equal(t, 2, first.NumRows())
	assert.Equal(t, "ENSG1.1", first.Value(0, "geneID"))
	assert.Equal(t, "ENSG3.1", first.Value(1, "geneID"))

	// Units hold copies, not views.
	first.SetValue(0, "geneID", "EDITED")
	assert.Equal(t, "ENSG1.1", cut.Value(0, "geneID"))
}

func TestPartitionMissingSampleColumn(t *testing.T) {
	table := NewTable(ToolFraser, []string{"geneID"})
	_, err := Partition(table, []string{"S1"})
	assert.Error(t, err)
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "23D1192", ShortName("23D1192.HOL.Hay"))
	assert.Equal(t, "24D0007", ShortName("24D0007"))
	assert.Equal(t, "", ShortName(".leading"))
}

func TestToolOutputColumns(t *testing.T) {
	assert.Equal(t, "seqnames", ToolFraser.OutputColumns()[0])
	assert.Equal(t, "gene_id", ToolOutrider.OutputColumns()[0])
	assert.Nil(t, Tool("bogus").OutputColumns())
}

func TestParseTool(t *testing.T) {
	tool, err := ParseTool("fraser")
	require.NoError(t, err)
	assert.Equal(t, ToolFraser, tool)

	_, err = ParseTool("dexseq")
	assert.Error(t, err)
}
