// Package filter prioritizes annotated result tables after a run: rows are
// kept when they pass significance, effect-size, panel-confidence and
// constraint thresholds.
package filter

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rnaxplore/outan/internal/results"
)

// Suffix is appended to the input stem for the output file name.
const Suffix = "_prioritized"

// Criteria holds filter thresholds. Nil fields leave that filter off.
type Criteria struct {
	MaxPadjust  *float64 // keep rows with padjust < threshold
	MinZScore   *float64 // keep rows with |zScore| > threshold, outrider tables
	MinDeltaPsi *float64 // keep rows with |deltaPsi| > threshold, fraser tables
	MinPLI      *float64 // keep rows with pLI > threshold
	Confidence  []string // keep rows whose panel confidence is in the set
}

// Defaults returns the full prioritization criteria.
func Defaults() Criteria {
	return Criteria{
		MaxPadjust:  Threshold(0.05),
		MinZScore:   Threshold(2.0),
		MinDeltaPsi: Threshold(0.3),
		MinPLI:      Threshold(0.9),
		Confidence:  []string{"green", "amber"},
	}
}

// Threshold wraps a literal for use in Criteria.
func Threshold(v float64) *float64 {
	return &v
}

// Detect determines which tool produced an annotated table from its
// columns.
func Detect(t *results.Table) (results.Tool, error) {
	switch {
	case t.HasCol("hgncSymbol"):
		return results.ToolFraser, nil
	case t.HasCol("geneID"), t.HasCol("gene_id"):
		return results.ToolOutrider, nil
	}
	return "", fmt.Errorf("cannot determine table type (fraser or outrider)")
}

// Load reads an annotated table and detects its tool from the columns. A
// non-empty override skips detection.
func Load(path string, override results.Tool) (*results.Table, error) {
	t, err := results.ReadTable(path, override)
	if err != nil {
		return nil, err
	}
	if override != "" {
		t.Tool = override
		return t, nil
	}
	tool, err := Detect(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Tool = tool
	return t, nil
}

// Apply returns a new table holding the rows that pass every criterion set
// in crit, in input order. Effect-size filters are skipped with a warning
// on tables from the other tool; panel confidence and pLI are skipped when
// the table was annotated without them. Cells that fail to parse fail
// their comparison.
func Apply(t *results.Table, crit Criteria, logger *zap.Logger) (*results.Table, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	keep := make([]bool, len(t.Rows))
	for i := range keep {
		keep[i] = true
	}

	if crit.MaxPadjust != nil {
		idx, ok := t.ColIndex(results.PadjustColumn)
		if !ok {
			return nil, fmt.Errorf("table has no %s column", results.PadjustColumn)
		}
		markNumeric(t, idx, keep, func(v float64) bool { return v < *crit.MaxPadjust })
		logger.Info("padjust filter applied",
			zap.Float64("threshold", *crit.MaxPadjust),
			zap.Int("kept", countKept(keep)))
	}

	if crit.MinZScore != nil {
		if t.Tool != results.ToolOutrider {
			logger.Warn("zScore filter only applies to outrider tables")
		} else {
			idx, ok := t.ColIndex("zScore")
			if !ok {
				return nil, fmt.Errorf("table has no zScore column")
			}
			markNumeric(t, idx, keep, func(v float64) bool { return math.Abs(v) > *crit.MinZScore })
			logger.Info("zScore filter applied",
				zap.Float64("threshold", *crit.MinZScore),
				zap.Int("kept", countKept(keep)))
		}
	}

	if crit.MinDeltaPsi != nil {
		if t.Tool != results.ToolFraser {
			logger.Warn("deltaPsi filter only applies to fraser tables")
		} else {
			idx, ok := t.ColIndex("deltaPsi")
			if !ok {
				return nil, fmt.Errorf("table has no deltaPsi column")
			}
			markNumeric(t, idx, keep, func(v float64) bool { return math.Abs(v) > *crit.MinDeltaPsi })
			logger.Info("deltaPsi filter applied",
				zap.Float64("threshold", *crit.MinDeltaPsi),
				zap.Int("kept", countKept(keep)))
		}
	}

	if len(crit.Confidence) > 0 {
		idx, ok := t.ColIndex("confidence_level")
		if !ok {
			logger.Warn("panel confidence column not present, skipping")
		} else {
			want := make(map[string]bool, len(crit.Confidence))
			for _, c := range crit.Confidence {
				want[normalizeConfidence(c)] = true
			}
			for i, row := range t.Rows {
				if keep[i] && !want[normalizeConfidence(row[idx])] {
					keep[i] = false
				}
			}
			logger.Info("panel confidence filter applied",
				zap.Strings("levels", crit.Confidence),
				zap.Int("kept", countKept(keep)))
		}
	}

	if crit.MinPLI != nil {
		idx, ok := t.ColIndex("pLI")
		if !ok {
			logger.Warn("pLI column not present, skipping")
		} else {
			markNumeric(t, idx, keep, func(v float64) bool { return v > *crit.MinPLI })
			logger.Info("pLI filter applied",
				zap.Float64("threshold", *crit.MinPLI),
				zap.Int("kept", countKept(keep)))
		}
	}

	out := t.CloneSchema()
	for i, row := range t.Rows {
		if keep[i] {
			out.Rows = append(out.Rows, append([]string(nil), row...))
		}
	}
	return out, nil
}

// Prioritize applies crit and sorts the survivors by ascending padjust.
func Prioritize(t *results.Table, crit Criteria, logger *zap.Logger) (*results.Table, error) {
	out, err := Apply(t, crit, logger)
	if err != nil {
		return nil, err
	}
	SortByPadjust(out)
	return out, nil
}

// SortByPadjust stable-sorts rows by ascending padjust, unparseable cells
// last. Tables without a padjust column keep their order.
func SortByPadjust(t *results.Table) {
	idx, ok := t.ColIndex(results.PadjustColumn)
	if !ok {
		return
	}

	type ranked struct {
		row    []string
		val    float64
		parsed bool
	}
	rows := make([]ranked, len(t.Rows))
	for i, row := range t.Rows {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
		rows[i] = ranked{row: row, val: v, parsed: err == nil}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.parsed != b.parsed {
			return a.parsed
		}
		if !a.parsed {
			return false
		}
		return a.val < b.val
	})
	for i := range rows {
		t.Rows[i] = rows[i].row
	}
}

// Summary counts the outcome of a filter run.
type Summary struct {
	Total   int
	Kept    int
	Samples int
	Genes   int
}

// Summarize counts distinct samples and genes among the kept rows.
func Summarize(src, kept *results.Table) Summary {
	return Summary{
		Total:   src.NumRows(),
		Kept:    kept.NumRows(),
		Samples: distinct(kept, results.SampleColumn),
		Genes:   distinct(kept, geneColumn(kept)),
	}
}

// geneColumn picks the column distinct genes are counted on.
func geneColumn(t *results.Table) string {
	if t.Tool == results.ToolFraser && t.HasCol("hgncSymbol") {
		return "hgncSymbol"
	}
	for _, name := range []string{"geneID", "gene_id", "gene_name"} {
		if t.HasCol(name) {
			return name
		}
	}
	return ""
}

func distinct(t *results.Table, col string) int {
	idx, ok := t.ColIndex(col)
	if !ok {
		return 0
	}
	seen := make(map[string]struct{})
	for _, row := range t.Rows {
		if v := row[idx]; v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// OutputPath derives the output file for an input table. An empty dir puts
// the file next to the input.
func OutputPath(inputPath, dir string) string {
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+Suffix+".tsv")
}

// WriteTable writes the table as TSV through a temp file.
func WriteTable(t *results.Table, path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	write := func() error {
		if _, err := w.WriteString(strings.Join(t.Cols, "\t") + "\n"); err != nil {
			return err
		}
		for _, row := range t.Rows {
			if _, err := w.WriteString(strings.Join(row, "\t") + "\n"); err != nil {
				return err
			}
		}
		return w.Flush()
	}
	if err := write(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// markNumeric clears keep for rows whose cell does not parse or does not
// pass.
func markNumeric(t *results.Table, col int, keep []bool, pass func(float64) bool) {
	for i, row := range t.Rows {
		if !keep[i] {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
		if err != nil || !pass(v) {
			keep[i] = false
		}
	}
}

// normalizeConfidence maps PanelApp numeric levels onto their color names
// and lowercases everything else.
func normalizeConfidence(s string) string {
	switch strings.TrimSpace(s) {
	case "3":
		return "green"
	case "2":
		return "amber"
	case "1":
		return "red"
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func countKept(keep []bool) int {
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	return n
}
