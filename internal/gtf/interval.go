package gtf

import "sort"

// chromSet provides overlap queries over one chromosome's genes using a
// sorted-slice approach. Genes are loaded once and never modified after
// build.
type chromSet struct {
	genes  []*Gene
	maxEnd []int64 // maxEnd[i] = max(End) over genes[:i+1]
}

func (cs *chromSet) add(g *Gene) {
	cs.genes = append(cs.genes, g)
}

// build sorts genes by start and computes the prefix max-end array.
// The stable sort keeps file order among equal starts.
func (cs *chromSet) build() {
	sort.SliceStable(cs.genes, func(i, j int) bool {
		return cs.genes[i].Start < cs.genes[j].Start
	})

	cs.maxEnd = make([]int64, len(cs.genes))
	var running int64
	for i, g := range cs.genes {
		if g.End > running {
			running = g.End
		}
		cs.maxEnd[i] = running
	}
}

// firstOverlap returns the gene overlapping [start, end] with the smallest
// file sequence number, or nil.
func (cs *chromSet) firstOverlap(start, end int64) *Gene {
	if len(cs.genes) == 0 {
		return nil
	}

	// Binary search: candidates all have Start <= end.
	hi := sort.Search(len(cs.genes), func(i int) bool {
		return cs.genes[i].Start > end
	})

	var best *Gene
	for i := hi - 1; i >= 0; i-- {
		// Prune: maxEnd[i] covers genes[:i+1]. If it falls short of
		// start, nothing further left can overlap.
		if cs.maxEnd[i] < start {
			break
		}
		g := cs.genes[i]
		if g.End >= start && (best == nil || g.Seq < best.Seq) {
			best = g
		}
	}
	return best
}
