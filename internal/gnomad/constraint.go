// Package gnomad loads gnomAD constraint metrics (lof_metrics.by_gene) and
// indexes them by gene symbol.
package gnomad

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// MetricColumns lists the constraint columns carried through annotation,
// in the order they are attached to result rows.
var MetricColumns = []string{
	"pLI", "oe_lof", "lof_z", "mis_z",
	"syn_z", "constraint_flag", "oe_mis", "oe_syn",
}

// Constraint holds one gene's constraint metrics. Nil pointers mean the
// cell was missing or NA in the source table.
type Constraint struct {
	Gene  string
	PLI   *float64
	OELof *float64
	LofZ  *float64
	MisZ  *float64
	SynZ  *float64
	OEMis *float64
	OESyn *float64
	Flags string // constraint_flag, kept verbatim
}

// Metric renders the named metric column for output; missing values render
// as the empty string.
func (c *Constraint) Metric(name string) string {
	switch name {
	case "pLI":
		return FormatMetric(c.PLI)
	case "oe_lof":
		return FormatMetric(c.OELof)
	case "lof_z":
		return FormatMetric(c.LofZ)
	case "mis_z":
		return FormatMetric(c.MisZ)
	case "syn_z":
		return FormatMetric(c.SynZ)
	case "oe_mis":
		return FormatMetric(c.OEMis)
	case "oe_syn":
		return FormatMetric(c.OESyn)
	case "constraint_flag":
		return c.Flags
	}
	return ""
}

// FormatMetric renders a possibly-missing float for delimited output.
func FormatMetric(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// columnIndices holds the positions of the columns we read.
type columnIndices struct {
	gene  int
	pli   int
	oeLof int
	lofZ  int
	misZ  int
	synZ  int
	oeMis int
	oeSyn int
	flags int
}

// LoadTable loads a gnomAD lof_metrics.by_gene TSV. The header must contain
// a "gene" column; metric columns are located by name and may be absent.
// Gzipped (or bgzipped) files are decompressed transparently.
func LoadTable(path string) ([]Constraint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open constraint table: %w", err)
	}
	defer f.Close()

	reader, closeFn, err := maybeGzip(f)
	if err != nil {
		return nil, fmt.Errorf("open constraint table: %w", err)
	}
	defer closeFn()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read constraint table: %w", err)
		}
		return nil, fmt.Errorf("constraint table: empty file")
	}

	cols := columnIndices{
		gene: -1, pli: -1, oeLof: -1, lofZ: -1, misZ: -1,
		synZ: -1, oeMis: -1, oeSyn: -1, flags: -1,
	}
	for i, col := range strings.Split(scanner.Text(), "\t") {
		switch col {
		case "gene":
			cols.gene = i
		case "pLI":
			cols.pli = i
		case "oe_lof":
			cols.oeLof = i
		case "lof_z":
			cols.lofZ = i
		case "mis_z":
			cols.misZ = i
		case "syn_z":
			cols.synZ = i
		case "oe_mis":
			cols.oeMis = i
		case "oe_syn":
			cols.oeSyn = i
		case "constraint_flag":
			cols.flags = i
		}
	}
	if cols.gene < 0 {
		return nil, fmt.Errorf("constraint table: missing 'gene' column")
	}

	var rows []Constraint
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) <= cols.gene {
			continue
		}
		gene := strings.TrimSpace(fields[cols.gene])
		if gene == "" {
			continue
		}

		rows = append(rows, Constraint{
			Gene:  gene,
			PLI:   metricAt(fields, cols.pli),
			OELof: metricAt(fields, cols.oeLof),
			LofZ:  metricAt(fields, cols.lofZ),
			MisZ:  metricAt(fields, cols.misZ),
			SynZ:  metricAt(fields, cols.synZ),
			OEMis: metricAt(fields, cols.oeMis),
			OESyn: metricAt(fields, cols.oeSyn),
			Flags: stringAt(fields, cols.flags),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read constraint table: %w", err)
	}

	return rows, nil
}

// metricAt parses a float cell; NA, empty and unparseable cells yield nil.
func metricAt(fields []string, idx int) *float64 {
	if idx < 0 || idx >= len(fields) {
		return nil
	}
	cell := strings.TrimSpace(fields[idx])
	if cell == "" || cell == "NA" {
		return nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return nil
	}
	return &v
}

func stringAt(fields []string, idx int) string {
	if idx < 0 || idx >= len(fields) {
		return ""
	}
	cell := strings.TrimSpace(fields[idx])
	if cell == "NA" {
		return ""
	}
	return cell
}

// maybeGzip wraps f in a gzip reader when the stream starts with the gzip
// magic number. bgzip files are gzip-compatible and decode the same way.
func maybeGzip(f *os.File) (io.Reader, func() error, error) {
	magic := make([]byte, 2)
	n, err := f.Read(magic)
	if err != nil && err != io.EOF {
		return nil, nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, nil, err
	}
	if n == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, err
		}
		return gz, gz.Close, nil
	}
	return f, func() error { return nil }, nil
}

// Index maps gene symbol to its constraint record.
type Index map[string]*Constraint

// NewIndex deduplicates rows into a symbol-keyed map. Among duplicate
// symbols the record with the highest pLI wins; records without pLI sort
// last, and the stable order keeps earlier file rows ahead on ties.
func NewIndex(rows []Constraint) Index {
	sorted := make([]*Constraint, len(rows))
	for i := range rows {
		sorted[i] = &rows[i]
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].PLI, sorted[j].PLI
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return *pi > *pj
		}
	})

	index := make(Index, len(sorted))
	for _, c := range sorted {
		if _, ok := index[c.Gene]; !ok {
			index[c.Gene] = c
		}
	}
	return index
}
