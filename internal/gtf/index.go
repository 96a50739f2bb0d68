package gtf

// Index resolves result rows to genes two ways: by version-stripped gene id
// and by coordinate overlap on a normalized chromosome name.
//
// When several genes share a stripped id (PAR_Y duplicates), the last one
// in file order wins. Overlap lookups return the earliest gene in file
// order among all overlapping candidates.
type Index struct {
	byID    map[string]*Gene
	byChrom map[string]*chromSet
	count   int
}

// NewIndex builds the lookup structures over genes.
func NewIndex(genes []Gene) *Index {
	idx := &Index{
		byID:    make(map[string]*Gene, len(genes)),
		byChrom: make(map[string]*chromSet),
		count:   len(genes),
	}

	for i := range genes {
		g := &genes[i]
		idx.byID[StripVersion(g.ID)] = g

		key := NormalizeChrom(g.Chrom)
		cs := idx.byChrom[key]
		if cs == nil {
			cs = &chromSet{}
			idx.byChrom[key] = cs
		}
		cs.add(g)
	}

	for _, cs := range idx.byChrom {
		cs.build()
	}

	return idx
}

// ByID returns the gene for a raw (possibly version-suffixed) gene id,
// or nil if unknown.
func (idx *Index) ByID(raw string) *Gene {
	if idx == nil {
		return nil
	}
	return idx.byID[StripVersion(raw)]
}

// FirstOverlap returns the gene overlapping the closed interval [start, end]
// on chrom that appears earliest in the source file, or nil. The queried
// chromosome name is normalized the same way index keys are, so "chr7" and
// "7" resolve identically.
func (idx *Index) FirstOverlap(chrom string, start, end int64) *Gene {
	if idx == nil {
		return nil
	}
	cs := idx.byChrom[NormalizeChrom(chrom)]
	if cs == nil {
		return nil
	}
	return cs.firstOverlap(start, end)
}

// Len returns the number of indexed genes.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return idx.count
}
