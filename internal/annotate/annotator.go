// Package annotate enriches per-sample outlier tables with gene metadata,
// gnomAD constraint metrics and disease-panel evidence.
package annotate

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rnaxplore/outan/internal/gnomad"
	"github.com/rnaxplore/outan/internal/gtf"
	"github.com/rnaxplore/outan/internal/panelapp"
	"github.com/rnaxplore/outan/internal/results"
)

// Refs bundles the reference indexes an annotation run works from. Any of
// them may be empty; the matching annotation step is then skipped or
// yields empty cells.
type Refs struct {
	Genes      *gtf.Index
	Constraint gnomad.Index
	Panel      panelapp.Index
}

// Annotator applies the annotation steps to one sample unit at a time. It
// only reads the shared indexes, so a single Annotator is safe for
// concurrent use across units.
type Annotator struct {
	refs   Refs
	logger *zap.Logger
}

// New creates an Annotator over the given references.
func New(refs Refs) *Annotator {
	return &Annotator{refs: refs, logger: zap.NewNop()}
}

// SetLogger replaces the annotator's logger.
func (a *Annotator) SetLogger(logger *zap.Logger) {
	if logger != nil {
		a.logger = logger
	}
}

// AnnotateUnit annotates the unit's table in place. Rows are never added
// or removed; lookups that miss leave empty cells.
func (a *Annotator) AnnotateUnit(unit *results.SampleUnit) error {
	switch unit.Tool {
	case results.ToolFraser:
		return a.annotateFraser(unit.Table)
	case results.ToolOutrider:
		return a.annotateOutrider(unit.Table)
	}
	return fmt.Errorf("unknown tool %q", unit.Tool)
}

// annotateFraser resolves each splicing event to the earliest overlapping
// gene. The chrom column always mirrors seqnames, even without a gene
// index. The gene column used for metric lookups prefers resolved
// gene_name values over the caller's hgncSymbol.
func (a *Annotator) annotateFraser(t *results.Table) error {
	seqCol, ok := t.ColIndex("seqnames")
	if !ok {
		return fmt.Errorf("fraser table has no seqnames column")
	}

	t.AddCol("chrom")
	for i := range t.Rows {
		t.SetValue(i, "chrom", t.Rows[i][seqCol])
	}

	if a.refs.Genes.Len() > 0 {
		t.AddCol("gene_name")
		t.AddCol("gene_id")
		startCol, hasStart := t.ColIndex("start")
		endCol, hasEnd := t.ColIndex("end")

		for i, row := range t.Rows {
			var g *gtf.Gene
			if hasStart && hasEnd {
				start, serr := strconv.ParseInt(strings.TrimSpace(row[startCol]), 10, 64)
				end, eerr := strconv.ParseInt(strings.TrimSpace(row[endCol]), 10, 64)
				if serr == nil && eerr == nil {
					g = a.refs.Genes.FirstOverlap(row[seqCol], start, end)
				}
			}
			if g != nil {
				t.SetValue(i, "gene_name", g.Name)
				t.SetValue(i, "gene_id", gtf.StripVersion(g.ID))
			} else {
				t.SetValue(i, "gene_name", "")
				t.SetValue(i, "gene_id", "")
			}
		}
	}

	geneCol := "gene_name"
	if t.HasCol("hgncSymbol") {
		geneCol = "hgncSymbol"
	}
	if anyNonEmpty(t, "gene_name") {
		geneCol = "gene_name"
	}

	a.annotateConstraint(t, geneCol)
	a.annotatePanel(t, geneCol)
	return nil
}

// annotateOutrider resolves each row's gene id against the gene index:
// coordinates and the symbol come from the index, and the geneID column is
// canonicalized to the index's versioned id and renamed gene_id. Without a
// gene index the table keeps its geneID column and metric lookups fall
// back to the raw ids.
func (a *Annotator) annotateOutrider(t *results.Table) error {
	if a.refs.Genes.Len() > 0 {
		idCol, ok := t.ColIndex("geneID")
		if !ok {
			return fmt.Errorf("outrider table has no geneID column")
		}

		for _, c := range []string{"gene_name", "chrom", "start", "end", "strand"} {
			t.AddCol(c)
		}
		for i, row := range t.Rows {
			if g := a.refs.Genes.ByID(row[idCol]); g != nil {
				t.SetValue(i, "gene_name", g.Name)
				t.SetValue(i, "chrom", g.Chrom)
				t.SetValue(i, "start", strconv.FormatInt(g.Start, 10))
				t.SetValue(i, "end", strconv.FormatInt(g.End, 10))
				t.SetValue(i, "strand", g.Strand)
				t.Rows[i][idCol] = g.ID
			} else {
				t.SetValue(i, "gene_name", "")
				t.SetValue(i, "chrom", "")
				t.SetValue(i, "start", "")
				t.SetValue(i, "end", "")
				t.SetValue(i, "strand", "")
			}
		}
		t.RenameCol("geneID", "gene_id")
	}

	geneCol := "geneID"
	if anyNonEmpty(t, "gene_name") {
		geneCol = "gene_name"
	}

	a.annotateConstraint(t, geneCol)
	a.annotatePanel(t, geneCol)
	return nil
}

// annotateConstraint adds the gnomAD metric columns keyed on geneCol. Runs
// only when constraint data is loaded and the table has the key column;
// the columns appear even when every lookup misses.
func (a *Annotator) annotateConstraint(t *results.Table, geneCol string) {
	if len(a.refs.Constraint) == 0 || !t.HasCol(geneCol) {
		return
	}
	for _, name := range gnomad.MetricColumns {
		t.AddCol(name)
	}
	col, _ := t.ColIndex(geneCol)
	for i, row := range t.Rows {
		entry := a.refs.Constraint[row[col]]
		for _, name := range gnomad.MetricColumns {
			if entry != nil {
				t.SetValue(i, name, entry.Metric(name))
			} else {
				t.SetValue(i, name, "")
			}
		}
	}
}

// annotatePanel adds Mode_Of_Inheritance and Phenotypes keyed on geneCol.
func (a *Annotator) annotatePanel(t *results.Table, geneCol string) {
	if len(a.refs.Panel) == 0 || !t.HasCol(geneCol) {
		return
	}
	t.AddCol("Mode_Of_Inheritance")
	t.AddCol("Phenotypes")
	col, _ := t.ColIndex(geneCol)
	for i, row := range t.Rows {
		if entry := a.refs.Panel[row[col]]; entry != nil {
			t.SetValue(i, "Mode_Of_Inheritance", entry.MOI)
			t.SetValue(i, "Phenotypes", entry.Phenotypes)
		} else {
			t.SetValue(i, "Mode_Of_Inheritance", "")
			t.SetValue(i, "Phenotypes", "")
		}
	}
}

// anyNonEmpty reports whether the column exists and holds at least one
// non-empty cell.
func anyNonEmpty(t *results.Table, name string) bool {
	col, ok := t.ColIndex(name)
	if !ok {
		return false
	}
	for _, row := range t.Rows {
		if row[col] != "" {
			return true
		}
	}
	return false
}
