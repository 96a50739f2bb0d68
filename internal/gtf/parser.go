// Package gtf loads GENCODE gene annotations and resolves result rows to
// genes, either by gene id or by coordinate overlap.
package gtf

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Parse reads GTF content and returns all gene features in file order.
// Comments, non-gene features and malformed lines are skipped.
func Parse(r io.Reader) ([]Gene, error) {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for long attribute columns
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var genes []Gene
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 9 || fields[2] != "gene" {
			continue
		}

		start, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}

		attrs := parseAttributes(fields[8])
		id := attrs["gene_id"]
		if id == "" {
			continue
		}

		genes = append(genes, Gene{
			ID:     id,
			Name:   attrs["gene_name"],
			Chrom:  fields[0],
			Start:  start,
			End:    end,
			Strand: fields[6],
			Seq:    len(genes),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan GTF: %w", err)
	}
	if len(genes) == 0 {
		return nil, fmt.Errorf("no gene features found")
	}
	return genes, nil
}

// Load reads gene features from a GTF file, transparently decompressing
// gzip content (detected by magic bytes, so .bgz files work too).
func Load(path string) ([]Gene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open GTF file: %w", err)
	}
	defer f.Close()

	reader, closeFn, err := maybeGzip(f)
	if err != nil {
		return nil, fmt.Errorf("open GTF file: %w", err)
	}
	defer closeFn()

	genes, err := Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return genes, nil
}

// maybeGzip wraps f in a gzip reader when the stream starts with the gzip
// magic number (0x1f, 0x8b).
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

// parseAttributes parses the GTF attribute column.
// Format: key "value"; key "value"; ...
func parseAttributes(attrStr string) map[string]string {
	attrs := make(map[string]string)

	parts := strings.Split(attrStr, ";")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		idx := strings.Index(part, " ")
		if idx == -1 {
			continue
		}

		key := part[:idx]
		value := strings.TrimSpace(part[idx+1:])
		value = strings.Trim(value, "\"")

		attrs[key] = value
	}

	return attrs
}

// StripVersion removes the version suffix from an Ensembl gene id.
// e.g. "ENSG00000133703.14" -> "ENSG00000133703". PAR_Y ids collapse to
// the same base id ("ENSG00000182378.15_PAR_Y" -> "ENSG00000182378").
func StripVersion(id string) string {
	if idx := strings.IndexByte(id, '.'); idx != -1 {
		return id[:idx]
	}
	return id
}

// NormalizeChrom normalizes chromosome names by removing the "chr" prefix.
// This keeps lookups consistent between sources (GENCODE uses "chr1",
// result tables often use "1").
func NormalizeChrom(chrom string) string {
	if strings.HasPrefix(chrom, "chr") {
		return chrom[3:]
	}
	return chrom
}
