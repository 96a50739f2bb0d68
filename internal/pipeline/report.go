package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/rnaxplore/outan/internal/results"
)

// ToolReport summarizes one tool's annotation round.
type ToolReport struct {
	Tool      results.Tool
	Submitted int
	Succeeded int
	Failed    []string // samples whose unit failed or could not be written
	Err       error    // failure before any unit was submitted
}

// Report summarizes a pipeline run.
type Report struct {
	RunID   string
	Tools   []ToolReport
	Files   []string // per-sample files written, in submission order
	ZipPath string   // empty when no archive was produced
	Notes   []string // annotation sources that degraded to empty
	Elapsed time.Duration
}

// Err aggregates the run's failures: tool-level errors plus any tool where
// units were submitted and none succeeded. Individual failed units with
// surviving siblings do not fail the run.
func (r *Report) Err() error {
	var err error
	for _, tr := range r.Tools {
		if tr.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", tr.Tool, tr.Err))
			continue
		}
		if tr.Submitted > 0 && tr.Succeeded == 0 {
			err = multierr.Append(err, fmt.Errorf("%s: none of %d sample files could be written", tr.Tool, tr.Submitted))
		}
	}
	return err
}

// TotalSucceeded returns how many per-sample files were written.
func (r *Report) TotalSucceeded() int {
	n := 0
	for _, tr := range r.Tools {
		n += tr.Succeeded
	}
	return n
}
