// Package results models FRASER and OUTRIDER outlier tables: reading the
// tab-separated caller output, selecting samples, and partitioning rows
// into per-sample work units.
package results

import "fmt"

// Tool identifies which caller produced a results table.
type Tool string

const (
	ToolFraser   Tool = "fraser"
	ToolOutrider Tool = "outrider"
)

// Tools lists the supported callers in stable order.
func Tools() []Tool {
	return []Tool{ToolFraser, ToolOutrider}
}

// ParseTool validates a caller name.
func ParseTool(s string) (Tool, error) {
	switch Tool(s) {
	case ToolFraser, ToolOutrider:
		return Tool(s), nil
	}
	return "", fmt.Errorf("unknown tool %q (want fraser or outrider)", s)
}

// PadjustColumn holds the multiple-testing-adjusted p-value in both tools'
// output.
const PadjustColumn = "padjust"

// SampleColumn holds the sample identifier in both tools' output.
const SampleColumn = "sampleID"

// fraserOutputOrder is the column order of the per-sample FRASER files.
// Columns absent from a given run are skipped, the rest keep this order.
var fraserOutputOrder = []string{
	"seqnames",
	"start",
	"end",
	"width",
	"strand",
	"sampleID",
	"type",
	"pValue",
	"padjust",
	"psiValue",
	"deltaPsi",
	"counts",
	"totalCounts",
	"meanCounts",
	"meanTotalCounts",
	"nonsplitCounts",
	"nonsplitProportion",
	"nonsplitProportion_99quantile",
	"gene_name",
	"gene_id",
	"chrom",
	"pLI",
	"oe_lof",
	"lof_z",
	"mis_z",
	"Mode_Of_Inheritance",
	"Phenotypes",
}

// outriderOutputOrder is the column order of the per-sample OUTRIDER files.
var outriderOutputOrder = []string{
	"gene_id",
	"sampleID",
	"pValue",
	"padjust",
	"zScore",
	"l2fc",
	"rawcounts",
	"meanRawcounts",
	"normcounts",
	"meanCorrected",
	"theta",
	"aberrant",
	"AberrantBySample",
	"AberrantByGene",
	"padj_rank",
	"gene_name",
	"chrom",
	"start",
	"end",
	"strand",
	"pLI",
	"oe_lof",
	"lof_z",
	"mis_z",
	"Mode_Of_Inheritance",
	"Phenotypes",
}

// OutputColumns returns the ordered output column list for the tool.
func (t Tool) OutputColumns() []string {
	switch t {
	case ToolFraser:
		return fraserOutputOrder
	case ToolOutrider:
		return outriderOutputOrder
	}
	return nil
}

// outriderNative names the columns OUTRIDER itself writes. Used to spot a
// nameless leading index column exported by data-frame tooling.
var outriderNative = map[string]bool{
	"geneID":           true,
	"sampleID":         true,
	"pValue":           true,
	"padjust":          true,
	"zScore":           true,
	"l2fc":             true,
	"rawcounts":        true,
	"meanRawcounts":    true,
	"normcounts":       true,
	"meanCorrected":    true,
	"theta":            true,
	"aberrant":         true,
	"AberrantBySample": true,
	"AberrantByGene":   true,
	"padj_rank":        true,
}
