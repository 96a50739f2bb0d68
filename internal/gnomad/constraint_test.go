package gnomad

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConstraintTSV = "gene\ttranscript\tpLI\toe_lof\tlof_z\tmis_z\tsyn_z\toe_mis\toe_syn\tconstraint_flag\n" +
	"BRCA1\tENST00000357654\t0.0\t0.79\t1.1\t0.5\t0.1\t0.95\t1.01\t\n" +
	"SCN1A\tENST00000303395\t0.4\t0.2\t2.8\t3.1\tNA\t0.6\t0.98\t\n" +
	"SCN1A\tENST00000674923\t0.95\t0.1\t3.5\t3.9\t0.2\t0.5\t0.97\t\n" +
	"TTN\tENST00000589042\tNA\tNA\tNA\tNA\tNA\tNA\tNA\tlof_too_many\n"

func writeConstraintFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lof_metrics.by_gene.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleConstraintTSV), 0644))
	return path
}

func TestLoadTable(t *testing.T) {
	rows, err := LoadTable(writeConstraintFile(t))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	brca1 := rows[0]
	assert.Equal(t, "BRCA1", brca1.Gene)
	require.NotNil(t, brca1.PLI)
	assert.Equal(t, 0.0, *brca1.PLI)
	require.NotNil(t, brca1.OELof)
	assert.Equal(t, 0.79, *brca1.OELof)

	scn1a := rows[1]
	assert.Nil(t, scn1a.SynZ, "NA parses to nil")

	ttn := rows[3]
	assert.Nil(t, ttn.PLI)
	assert.Equal(t, "lof_too_many", ttn.Flags)
}

func TestLoadTableMissingGeneColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("symbol\tpLI\nBRCA1\t0.1\n"), 0644))

	_, err := LoadTable(path)
	assert.ErrorContains(t, err, "missing 'gene' column")
}

func TestNewIndexHighestPLIWins(t *testing.T) {
	pli := func(v float64) *float64 { return &v }

	rows := []Constraint{
		{Gene: "SCN1A", PLI: pli(0.40)},
		{Gene: "SCN1A", PLI: pli(0.95)},
		{Gene: "TTN", PLI: nil, Flags: "first"},
		{Gene: "TTN", PLI: nil, Flags: "second"},
		{Gene: "BRCA1", PLI: pli(0.0)},
	}

	index := NewIndex(rows)
	require.Len(t, index, 3)

	require.NotNil(t, index["SCN1A"].PLI)
	assert.Equal(t, 0.95, *index["SCN1A"].PLI)

	// nil-pLI duplicates keep the earlier row
	assert.Equal(t, "first", index["TTN"].Flags)

	assert.Nil(t, index["NOPE"], "missing symbols return nil")
}

func TestConstraintMetric(t *testing.T) {
	pli := 0.997
	c := &Constraint{Gene: "SCN1A", PLI: &pli, Flags: "ok"}

	assert.Equal(t, "0.997", c.Metric("pLI"))
	assert.Equal(t, "", c.Metric("oe_lof"), "missing metric renders empty")
	assert.Equal(t, "ok", c.Metric("constraint_flag"))
	assert.Equal(t, "", c.Metric("unknown"))
}

func TestFormatMetric(t *testing.T) {
	v := 3.0
	assert.Equal(t, "3", FormatMetric(&v))
	v = 0.79
	assert.Equal(t, "0.79", FormatMetric(&v))
	assert.Equal(t, "", FormatMetric(nil))
}
