package results

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Table is an in-memory tab-separated results table. Cells stay strings;
// an empty cell means missing.
type Table struct {
	Tool Tool
	Cols []string
	Rows [][]string

	colIdx map[string]int
}

// NewTable creates an empty table with the given columns.
func NewTable(tool Tool, cols []string) *Table {
	t := &Table{Tool: tool, Cols: append([]string(nil), cols...)}
	t.reindex()
	return t
}

// CloneSchema returns an empty table with the same tool and columns.
func (t *Table) CloneSchema() *Table {
	return NewTable(t.Tool, t.Cols)
}

func (t *Table) reindex() {
	t.colIdx = make(map[string]int, len(t.Cols))
	for i, c := range t.Cols {
		if _, ok := t.colIdx[c]; !ok {
			t.colIdx[c] = i
		}
	}
}

// ColIndex returns the position of a column.
func (t *Table) ColIndex(name string) (int, bool) {
	i, ok := t.colIdx[name]
	return i, ok
}

// HasCol reports whether the table has the named column.
func (t *Table) HasCol(name string) bool {
	_, ok := t.colIdx[name]
	return ok
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// Value returns the cell at row for the named column, or "" when the
// column does not exist.
func (t *Table) Value(row int, name string) string {
	i, ok := t.colIdx[name]
	if !ok || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][i]
}

// SetValue writes the cell at row for the named column. Unknown columns
// and out-of-range rows are ignored.
func (t *Table) SetValue(row int, name, value string) {
	i, ok := t.colIdx[name]
	if !ok || row < 0 || row >= len(t.Rows) {
		return
	}
	t.Rows[row][i] = value
}

// AddCol appends a column, filling existing rows with empty cells. Adding
// a column that already exists is a no-op.
func (t *Table) AddCol(name string) {
	if t.HasCol(name) {
		return
	}
	t.Cols = append(t.Cols, name)
	t.colIdx[name] = len(t.Cols) - 1
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
}

// RenameCol renames a column in place, reporting whether it existed.
func (t *Table) RenameCol(oldName, newName string) bool {
	i, ok := t.colIdx[oldName]
	if !ok {
		return false
	}
	t.Cols[i] = newName
	t.reindex()
	return true
}

// AppendRow adds a row that must match the current column count.
func (t *Table) AppendRow(fields []string) error {
	if len(fields) != len(t.Cols) {
		return fmt.Errorf("row has %d fields for %d columns", len(fields), len(t.Cols))
	}
	t.Rows = append(t.Rows, fields)
	return nil
}

// Read parses a tab-separated results table. The header must carry a
// sampleID column; a table without one cannot be partitioned and is
// rejected outright rather than silently matching zero samples. OUTRIDER
// tables exported with a nameless leading index column get that column
// dropped: either the first header cell is empty, or it is not a column
// OUTRIDER writes while geneID appears further right.
func Read(r io.Reader, tool Tool) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty results table")
	}
	cols := strings.Split(strings.TrimSuffix(scanner.Text(), "\r"), "\t")

	dropIndex := false
	if tool == ToolOutrider && len(cols) > 1 {
		if cols[0] == "" {
			dropIndex = true
		} else if !outriderNative[cols[0]] {
			for _, c := range cols[1:] {
				if c == "geneID" {
					dropIndex = true
					break
				}
			}
		}
	}
	if dropIndex {
		cols = cols[1:]
	}

	t := NewTable(tool, cols)
	if !t.HasCol(SampleColumn) {
		return nil, fmt.Errorf("missing required %s column", SampleColumn)
	}

	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if dropIndex && len(fields) > len(cols) {
			fields = fields[1:]
		}
		if len(fields) > len(cols) {
			return nil, fmt.Errorf("line %d: %d fields for %d columns", lineNo, len(fields), len(cols))
		}
		for len(fields) < len(cols) {
			fields = append(fields, "")
		}
		t.Rows = append(t.Rows, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// ReadTable loads a results table from a file, transparently decompressing
// gzip.
func ReadTable(path string, tool Tool) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := maybeGzip(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	t, err := Read(r, tool)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// maybeGzip wraps r in a gzip reader when the stream starts with the gzip
// magic bytes.
func maybeGzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(br)
	}
	return br, nil
}
