// Package output writes annotated per-sample tables to disk.
package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rnaxplore/outan/internal/results"
)

// PerSampleDirName is the subdirectory of the output dir that receives
// per-sample files.
const PerSampleDirName = "per_sample_files"

// Writer writes annotated sample units as tab-separated files.
type Writer struct {
	dir string
}

// NewWriter prepares the per-sample output directory under outputDir.
func NewWriter(outputDir string) (*Writer, error) {
	dir := filepath.Join(outputDir, PerSampleDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the per-sample output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// FileName returns a unit's output file name: the sample id up to the
// first dot plus the tool suffix.
func FileName(unit *results.SampleUnit) string {
	return fmt.Sprintf("%s.%s.tab", results.ShortName(unit.Sample), unit.Tool)
}

// WriteUnit writes one annotated unit and returns the file path. Only
// columns from the tool's output order that exist in the table are
// written, in that order; everything else is dropped. The file appears
// atomically via a temp-file rename, so reruns never expose partial
// output.
func (w *Writer) WriteUnit(unit *results.SampleUnit) (string, error) {
	path := filepath.Join(w.dir, FileName(unit))

	var cols []string
	var idx []int
	for _, name := range unit.Tool.OutputColumns() {
		if i, ok := unit.Table.ColIndex(name); ok {
			cols = append(cols, name)
			idx = append(idx, i)
		}
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("unit %s: no writable columns", unit.Sample)
	}

	tmp := path + ".tmp"
	if err := writeTSV(tmp, cols, idx, unit.Table.Rows); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize %s: %w", path, err)
	}
	return path, nil
}

func writeTSV(path string, cols []string, idx []int, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
		f.Close()
		return err
	}
	fields := make([]string, len(idx))
	for _, row := range rows {
		for j, i := range idx {
			fields[j] = sanitize(row[i])
		}
		if _, err := bw.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// sanitize keeps stray tabs and newlines in cell values from breaking the
// row structure.
func sanitize(v string) string {
	if !strings.ContainsAny(v, "\t\n\r") {
		return v
	}
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(v)
}
