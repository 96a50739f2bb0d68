// Package archive bundles run outputs into zip files and locates caller
// results inside delivered archives.
package archive

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rnaxplore/outan/internal/results"
)

// RunName returns the archive file name for a run finishing at t.
func RunName(t time.Time) string {
	return "run_" + t.Format("20060102_150405") + ".zip"
}

// Bundle writes a zip holding the given files under their base names; the
// directory structure is deliberately flattened. The archive appears
// atomically via a temp-file rename.
func Bundle(zipPath string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to bundle")
	}

	tmp := zipPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(f)
	for _, path := range files {
		if err := addFile(zw, path); err != nil {
			zw.Close()
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("bundle %s: %w", path, err)
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, zipPath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func addFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// ExtractZip unpacks an archive into destDir and returns the extracted
// file paths. Entries that would escape destDir are rejected.
func ExtractZip(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	root := filepath.Clean(destDir)
	var extracted []string
	for _, zf := range r.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		dest := filepath.Join(root, filepath.Clean(zf.Name))
		if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
			return nil, fmt.Errorf("archive entry %q escapes %s", zf.Name, destDir)
		}
		if err := extractFile(zf, dest); err != nil {
			return nil, fmt.Errorf("extract %s: %w", zf.Name, err)
		}
		extracted = append(extracted, dest)
	}
	return extracted, nil
}

func extractFile(zf *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	src, err := zf.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var fraserNames = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^fraser.*\.tab$`),
	regexp.MustCompile(`(?i)^fraser.*\.tsv$`),
	regexp.MustCompile(`(?i)fraser.*\.txt$`),
	regexp.MustCompile(`(?i)^fraser[_-]results`),
}

var outriderNames = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^outrider.*\.tab$`),
	regexp.MustCompile(`(?i)^outrider.*\.tsv$`),
	regexp.MustCompile(`(?i)outrider.*\.txt$`),
	regexp.MustCompile(`(?i)^outrider[_-]results`),
	regexp.MustCompile(`(?i)htseq`),
}

// Column markers that must all appear (case-insensitively) in a file's
// header before it is accepted as that tool's table.
var (
	fraserMarkers   = []string{"sampleid", "hgncsymbol", "pvalue", "deltapsi"}
	outriderMarkers = []string{"geneid", "sampleid", "zscore", "pvalue"}
)

// DetectTool classifies a results file. The file name proposes a tool and
// the header has to confirm it; anything else is rejected.
func DetectTool(path string) (results.Tool, bool) {
	base := filepath.Base(path)
	if matchAny(fraserNames, base) && hasMarkers(path, fraserMarkers) {
		return results.ToolFraser, true
	}
	if matchAny(outriderNames, base) && hasMarkers(path, outriderMarkers) {
		return results.ToolOutrider, true
	}
	return "", false
}

// FindResults scans files for caller tables, keeping the first hit per
// tool.
func FindResults(files []string) map[results.Tool]string {
	found := make(map[results.Tool]string)
	for _, f := range files {
		tool, ok := DetectTool(f)
		if !ok {
			continue
		}
		if _, dup := found[tool]; !dup {
			found[tool] = f
		}
	}
	return found
}

func matchAny(patterns []*regexp.Regexp, name string) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func hasMarkers(path string, markers []string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return false
	}

	have := make(map[string]bool)
	for _, col := range strings.Split(strings.TrimSuffix(scanner.Text(), "\r"), "\t") {
		have[strings.ToLower(strings.TrimSpace(col))] = true
	}
	for _, m := range markers {
		if !have[m] {
			return false
		}
	}
	return true
}
