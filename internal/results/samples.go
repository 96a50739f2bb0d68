package results

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// SampleUnit is one sample's slice of a results table, the unit of
// annotation work.
type SampleUnit struct {
	Tool   Tool
	Sample string
	Table  *Table
}

// MatchMode controls how requested sample ids map onto the ids present in
// a results table.
type MatchMode string

const (
	// MatchExact keeps samples whose id equals a requested id.
	MatchExact MatchMode = "exact"
	// MatchPartial keeps samples containing a requested id as a substring.
	MatchPartial MatchMode = "partial"
	// MatchAll keeps every sample in the table.
	MatchAll MatchMode = "all"
)

// ParseMatchMode validates a sample matching mode.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case MatchExact, MatchPartial, MatchAll:
		return MatchMode(s), nil
	}
	return "", fmt.Errorf("unknown sample match mode %q (want exact, partial or all)", s)
}

// LoadSampleList reads one sample id per line, trimming whitespace and
// dropping blank lines and duplicates.
func LoadSampleList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("sample list %s is empty", path)
	}
	return ids, nil
}

// DataSamples returns the table's unique sampleID values in
// first-appearance order.
func DataSamples(t *Table) []string {
	col, ok := t.ColIndex(SampleColumn)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var ids []string
	for _, row := range t.Rows {
		id := row[col]
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// MatchSamples picks which of the table's samples to process. Matches come
// back in the table's first-appearance order; requested ids that match
// nothing are logged.
func MatchSamples(t *Table, requested []string, mode MatchMode, logger *zap.Logger) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	data := DataSamples(t)
	if mode == MatchAll {
		return data
	}

	used := make(map[string]bool, len(requested))
	var matched []string
	for _, id := range data {
		var hits []string
		for _, req := range requested {
			ok := false
			switch mode {
			case MatchExact:
				ok = id == req
			case MatchPartial:
				ok = strings.Contains(id, req)
			}
			if ok {
				hits = append(hits, req)
				used[req] = true
			}
		}
		if len(hits) == 0 {
			continue
		}
		if len(hits) > 1 {
			logger.Debug("sample matches multiple requested ids",
				zap.String("sample", id),
				zap.Strings("requested", hits))
		}
		matched = append(matched, id)
	}

	var missing []string
	for _, req := range requested {
		if !used[req] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		logger.Warn("requested samples not found in results",
			zap.String("tool", string(t.Tool)),
			zap.Strings("samples", missing))
	}
	return matched
}

// ApplyPadjustCut keeps rows whose padjust parses strictly below the
// threshold. Rows with a missing or unparseable padjust are dropped.
func ApplyPadjustCut(t *Table, threshold float64) (*Table, error) {
	col, ok := t.ColIndex(PadjustColumn)
	if !ok {
		return nil, fmt.Errorf("%s table has no %s column", t.Tool, PadjustColumn)
	}
	out := t.CloneSchema()
	for _, row := range t.Rows {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
		if err != nil || v >= threshold {
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// Partition splits the table into per-sample units in the given sample
// order, preserving row order within each unit. Rows are deep-copied so
// units can be annotated independently; samples with no rows left are
// skipped.
func Partition(t *Table, samples []string) ([]SampleUnit, error) {
	col, ok := t.ColIndex(SampleColumn)
	if !ok {
		return nil, fmt.Errorf("%s table has no %s column", t.Tool, SampleColumn)
	}
	units := make([]SampleUnit, 0, len(samples))
	for _, sample := range samples {
		ut := t.CloneSchema()
		for _, row := range t.Rows {
			if row[col] != sample {
				continue
			}
			ut.Rows = append(ut.Rows, append([]string(nil), row...))
		}
		if len(ut.Rows) == 0 {
			continue
		}
		units = append(units, SampleUnit{Tool: t.Tool, Sample: sample, Table: ut})
	}
	return units, nil
}

// ShortName returns the sample id up to the first dot, the stem used for
// per-sample file names.
func ShortName(sample string) string {
	if i := strings.IndexByte(sample, '.'); i >= 0 {
		return sample[:i]
	}
	return sample
}
