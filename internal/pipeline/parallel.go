package pipeline

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/rnaxplore/outan/internal/annotate"
	"github.com/rnaxplore/outan/internal/results"
)

// maxWorkers caps the pool size; units are coarse enough that more workers
// buy nothing.
const maxWorkers = 16

// WorkItem is one sample unit queued for annotation.
type WorkItem struct {
	Seq  int
	Unit *results.SampleUnit
}

// WorkResult holds the annotated unit, or the failure that stopped it.
type WorkResult struct {
	Seq  int
	Unit *results.SampleUnit
	Err  error
}

// DefaultWorkers picks the worker count for this host.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > maxWorkers {
		n = maxWorkers
	}
	return n
}

// ParallelAnnotate annotates work items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence
// order); use OrderedCollect to consume them in sequence-number order.
// If workers is 0, DefaultWorkers is used. A panic inside one unit becomes
// that unit's error instead of taking the run down.
func ParallelAnnotate(ann *annotate.Annotator, items <-chan WorkItem, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = DefaultWorkers()
	}

	out := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				out <- annotateItem(ann, item)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func annotateItem(ann *annotate.Annotator, item WorkItem) (res WorkResult) {
	res = WorkResult{Seq: item.Seq, Unit: item.Unit}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("sample %s: panic: %v", item.Unit.Sample, r)
		}
	}()
	res.Err = ann.AnnotateUnit(item.Unit)
	return res
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(out <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range out {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range out {
				}
				return err
			}
		}
	}

	return nil
}
