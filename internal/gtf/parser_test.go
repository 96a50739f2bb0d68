package gtf

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGTF = `##description: evidence-based annotation of the human genome
##provider: GENCODE
chr12	HAVANA	gene	25205246	25250929	.	-	.	gene_id "ENSG00000133703.14"; gene_type "protein_coding"; gene_name "KRAS";
chr12	HAVANA	transcript	25205246	25250929	.	-	.	gene_id "ENSG00000133703.14"; transcript_id "ENST00000311936.8"; gene_name "KRAS";
chr12	HAVANA	exon	25250751	25250929	.	-	.	gene_id "ENSG00000133703.14"; transcript_id "ENST00000311936.8"; exon_number "1";
chr7	HAVANA	gene	140719327	140924929	.	-	.	gene_id "ENSG00000157764.14"; gene_type "protein_coding"; gene_name "BRAF";
chr7	HAVANA	gene	140800000	140850000	.	+	.	gene_id "ENSG00000999999.1"; gene_type "lncRNA"; gene_name "BRAF-AS9";
`

func TestParse(t *testing.T) {
	genes, err := Parse(strings.NewReader(sampleGTF))
	require.NoError(t, err)
	require.Len(t, genes, 3)

	kras := genes[0]
	assert.Equal(t, "ENSG00000133703.14", kras.ID)
	assert.Equal(t, "KRAS", kras.Name)
	assert.Equal(t, "chr12", kras.Chrom, "source chromosome spelling is preserved")
	assert.Equal(t, int64(25205246), kras.Start)
	assert.Equal(t, int64(25250929), kras.End)
	assert.Equal(t, "-", kras.Strand)
	assert.Equal(t, 0, kras.Seq)

	assert.Equal(t, "BRAF", genes[1].Name)
	assert.Equal(t, 1, genes[1].Seq)
	assert.Equal(t, 2, genes[2].Seq)
}

func TestParseSkipsMalformed(t *testing.T) {
	content := strings.Join([]string{
		`chr1	HAVANA	gene	bogus	2000	.	+	.	gene_id "ENSG1";`,
		`chr1	HAVANA	gene	1000	2000	.	+	.	gene_name "NOID";`,
		`chr1	HAVANA	gene	1000`,
		`chr1	HAVANA	gene	1000	2000	.	+	.	gene_id "ENSG2.1"; gene_name "OK";`,
	}, "\n")

	genes, err := Parse(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, genes, 1)
	assert.Equal(t, "ENSG2.1", genes[0].ID)
}

func TestParseNoGenes(t *testing.T) {
	_, err := Parse(strings.NewReader("## only comments\n"))
	assert.Error(t, err)
}

func TestParseAttributes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]string
	}{
		{
			name:  "basic attributes",
			input: `gene_id "ENSG00000133703.14"; gene_type "protein_coding"; gene_name "KRAS";`,
			expected: map[string]string{
				"gene_id":   "ENSG00000133703.14",
				"gene_type": "protein_coding",
				"gene_name": "KRAS",
			},
		},
		{
			name:  "repeated keys keep last value",
			input: `gene_id "ENSG1"; tag "basic"; tag "Ensembl_canonical";`,
			expected: map[string]string{
				"gene_id": "ENSG1",
				"tag":     "Ensembl_canonical",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseAttributes(tt.input)
			for key, want := range tt.expected {
				assert.Equal(t, want, result[key], "parseAttributes()[%q]", key)
			}
		})
	}
}

func TestStripVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ENSG00000133703.14", "ENSG00000133703"},
		{"ENSG00000133703", "ENSG00000133703"},
		{"ENSG00000182378.15_PAR_Y", "ENSG00000182378"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, StripVersion(tt.input), "StripVersion(%q)", tt.input)
	}
}

func TestNormalizeChrom(t *testing.T) {
	assert.Equal(t, "7", NormalizeChrom("chr7"))
	assert.Equal(t, "7", NormalizeChrom("7"))
	assert.Equal(t, "X", NormalizeChrom("chrX"))
	assert.Equal(t, "MT", NormalizeChrom("MT"))
}

func TestLoadGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genes.gtf.gz")

	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(sampleGTF))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	genes, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, genes, 3)
}
