package gtf

// Gene is a single gene feature from a GENCODE annotation table.
// Coordinates are 1-based inclusive. Chrom keeps the spelling used in the
// source file; index keys are normalized separately.
type Gene struct {
	ID     string // versioned gene_id as written in the file
	Name   string
	Chrom  string
	Start  int64
	End    int64
	Strand string
	Seq    int // position within the source file, used for tie-breaks
}

// Overlaps reports whether the gene overlaps the closed interval [start, end].
func (g *Gene) Overlaps(start, end int64) bool {
	return g.Start <= end && g.End >= start
}
