// Package pipeline orchestrates an annotation run: references and results
// tables load concurrently, per-sample units fan out across a worker pool,
// and the annotated tables land as per-sample files plus a run archive.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rnaxplore/outan/internal/annotate"
	"github.com/rnaxplore/outan/internal/archive"
	"github.com/rnaxplore/outan/internal/gnomad"
	"github.com/rnaxplore/outan/internal/gtf"
	"github.com/rnaxplore/outan/internal/output"
	"github.com/rnaxplore/outan/internal/panelapp"
	"github.com/rnaxplore/outan/internal/results"
)

// Options configures a pipeline run. At least one results table is
// required; the reference sources besides the GTF are optional and degrade
// to empty annotations. A nil PadjustCut means no pre-partition filtering.
type Options struct {
	GTFPath      string `validate:"required"`
	GnomadPath   string
	ConstraintDB string
	PanelPath    string

	FraserPath   string `validate:"required_without=OutriderPath"`
	OutriderPath string `validate:"required_without=FraserPath"`

	SampleFile string            `validate:"required_unless=Match all"`
	Match      results.MatchMode `validate:"oneof=exact partial all"`

	PadjustCut *float64 `validate:"omitempty,gt=0,lte=1"`
	OutputDir  string   `validate:"required"`
	Workers    int      `validate:"gte=0"`
	Zip        bool

	DisableGeneCache bool
}

// Pipeline runs annotation over one or both tools' results tables.
type Pipeline struct {
	opts   Options
	logger *zap.Logger
}

// New validates the options and creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return &Pipeline{opts: opts, logger: zap.NewNop()}, nil
}

// SetLogger replaces the pipeline's logger.
func (p *Pipeline) SetLogger(logger *zap.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// inputs holds everything the load phase produced.
type inputs struct {
	genes          *gtf.Index
	genesErr       error
	constraint     gnomad.Index
	constraintNote string
	panel          panelapp.Index
	panelNote      string
	tables         map[results.Tool]*results.Table
	tableErrs      map[results.Tool]error
}

// Run executes the pipeline. The returned Report is non-nil whenever the
// run got past loading; call Report.Err for the aggregated failure state.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}

	// Run-scoped logger; p.logger stays untouched so reruns on the same
	// Pipeline tag their lines with their own run_id.
	logger := p.logger.With(zap.String("run_id", report.RunID))
	logger.Info("annotation run starting",
		zap.String("output_dir", p.opts.OutputDir))

	var requested []string
	if p.opts.Match != results.MatchAll {
		ids, err := results.LoadSampleList(p.opts.SampleFile)
		if err != nil {
			return nil, fmt.Errorf("load sample list: %w", err)
		}
		requested = ids
	}

	in := p.loadInputs(logger)
	if in.genesErr != nil {
		return nil, in.genesErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, note := range []string{in.constraintNote, in.panelNote} {
		if note != "" {
			logger.Warn(note)
			report.Notes = append(report.Notes, note)
		}
	}

	writer, err := output.NewWriter(p.opts.OutputDir)
	if err != nil {
		return nil, err
	}

	ann := annotate.New(annotate.Refs{
		Genes:      in.genes,
		Constraint: in.constraint,
		Panel:      in.panel,
	})
	ann.SetLogger(logger)

	for _, tool := range results.Tools() {
		if p.resultsPath(tool) == "" {
			continue
		}
		rep, files := p.runTool(ctx, tool, in, requested, ann, writer, logger)
		report.Tools = append(report.Tools, rep)
		report.Files = append(report.Files, files...)
	}

	if p.opts.Zip && len(report.Files) > 0 {
		zipPath := filepath.Join(p.opts.OutputDir, archive.RunName(time.Now()))
		if err := archive.Bundle(zipPath, report.Files); err != nil {
			logger.Warn("run archive not written", zap.Error(err))
			report.Notes = append(report.Notes, fmt.Sprintf("run archive not written: %v", err))
		} else {
			report.ZipPath = zipPath
		}
	}

	report.Elapsed = time.Since(start)
	logger.Info("annotation run finished",
		zap.Int("files", len(report.Files)),
		zap.String("zip", report.ZipPath),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

// loadInputs loads the three reference sources and the requested results
// tables concurrently. Only the gene index is load-bearing; the rest
// record their failure and the run degrades.
func (p *Pipeline) loadInputs(logger *zap.Logger) *inputs {
	in := &inputs{
		tables:    make(map[results.Tool]*results.Table),
		tableErrs: make(map[results.Tool]error),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		in.genes, in.genesErr = p.loadGenes(logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		in.constraint, in.constraintNote = p.loadConstraint(logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		in.panel, in.panelNote = p.loadPanel(logger)
	}()

	for _, tool := range results.Tools() {
		path := p.resultsPath(tool)
		if path == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			table, err := results.ReadTable(path, tool)
			mu.Lock()
			in.tables[tool] = table
			in.tableErrs[tool] = err
			mu.Unlock()
		}()
	}

	wg.Wait()
	return in
}

func (p *Pipeline) loadGenes(logger *zap.Logger) (*gtf.Index, error) {
	start := time.Now()
	var genes []gtf.Gene
	var err error
	if p.opts.DisableGeneCache {
		genes, err = gtf.Load(p.opts.GTFPath)
	} else {
		genes, err = gtf.LoadCached(p.opts.GTFPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load gene annotations: %w", err)
	}
	idx := gtf.NewIndex(genes)
	logger.Info("gene index built",
		zap.Int("genes", idx.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return idx, nil
}

func (p *Pipeline) loadConstraint(logger *zap.Logger) (gnomad.Index, string) {
	if p.opts.GnomadPath == "" && p.opts.ConstraintDB == "" {
		return nil, "constraint annotation disabled: no gnomAD table given"
	}

	if p.opts.ConstraintDB != "" {
		idx, err := p.constraintFromStore()
		if err == nil {
			logger.Info("constraint metrics loaded",
				zap.Int("genes", len(idx)),
				zap.String("source", p.opts.ConstraintDB))
			return idx, ""
		}
		logger.Warn("constraint store unavailable, falling back to table parse", zap.Error(err))
	}

	if p.opts.GnomadPath == "" {
		return nil, "constraint annotation disabled: store unavailable and no gnomAD table given"
	}
	rows, err := gnomad.LoadTable(p.opts.GnomadPath)
	if err != nil {
		return nil, fmt.Sprintf("constraint annotation disabled: %v", err)
	}
	idx := gnomad.NewIndex(rows)
	logger.Info("constraint metrics loaded",
		zap.Int("genes", len(idx)),
		zap.String("source", p.opts.GnomadPath))
	return idx, ""
}

// constraintFromStore serves the constraint index out of the DuckDB store,
// populating it from the gnomAD table on first use.
func (p *Pipeline) constraintFromStore() (gnomad.Index, error) {
	store, err := gnomad.OpenStore(p.opts.ConstraintDB)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if !store.Loaded() {
		if p.opts.GnomadPath == "" {
			return nil, fmt.Errorf("store %s is empty and no gnomAD table given", p.opts.ConstraintDB)
		}
		if err := store.Load(p.opts.GnomadPath); err != nil {
			return nil, err
		}
	}
	return store.Index()
}

func (p *Pipeline) loadPanel(logger *zap.Logger) (panelapp.Index, string) {
	if p.opts.PanelPath == "" {
		return nil, "panel annotation disabled: no disease panel given"
	}
	panel, err := panelapp.LoadFile(p.opts.PanelPath)
	if err != nil {
		return nil, fmt.Sprintf("panel annotation disabled: %v", err)
	}
	idx := panelapp.NewIndex(panel)
	logger.Info("disease panel loaded",
		zap.String("name", panel.Name),
		zap.String("version", panel.Version),
		zap.Int("genes", len(idx)),
		zap.Int("green", panel.GreenCount()))
	return idx, ""
}

func (p *Pipeline) resultsPath(tool results.Tool) string {
	switch tool {
	case results.ToolFraser:
		return p.opts.FraserPath
	case results.ToolOutrider:
		return p.opts.OutriderPath
	}
	return ""
}

// runTool annotates one tool's table: sample matching, the padjust cut,
// per-sample partitioning, then the worker fan-out. Unit failures are
// isolated; the round keeps going.
func (p *Pipeline) runTool(ctx context.Context, tool results.Tool, in *inputs, requested []string, ann *annotate.Annotator, writer *output.Writer, logger *zap.Logger) (ToolReport, []string) {
	rep := ToolReport{Tool: tool}

	if err := in.tableErrs[tool]; err != nil {
		rep.Err = fmt.Errorf("read results table: %w", err)
		return rep, nil
	}
	table := in.tables[tool]

	matched := results.MatchSamples(table, requested, p.opts.Match, logger)
	if len(matched) == 0 {
		logger.Warn("no samples matched", zap.String("tool", string(tool)))
		return rep, nil
	}

	cut := table
	if p.opts.PadjustCut != nil {
		c, err := results.ApplyPadjustCut(table, *p.opts.PadjustCut)
		if err != nil {
			rep.Err = err
			return rep, nil
		}
		cut = c
	}

	units, err := results.Partition(cut, matched)
	if err != nil {
		rep.Err = err
		return rep, nil
	}
	rep.Submitted = len(units)
	if rep.Submitted == 0 {
		fields := []zap.Field{zap.String("tool", string(tool))}
		if p.opts.PadjustCut != nil {
			fields = append(fields, zap.Float64("cutoff", *p.opts.PadjustCut))
		}
		logger.Warn("no rows left to annotate", fields...)
		return rep, nil
	}

	items := make(chan WorkItem)
	go func() {
		defer close(items)
		for i := range units {
			select {
			case items <- WorkItem{Seq: i, Unit: &units[i]}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var files []string
	_ = OrderedCollect(ParallelAnnotate(ann, items, p.opts.Workers), func(r WorkResult) error {
		if r.Err != nil {
			logger.Error("sample annotation failed",
				zap.String("tool", string(tool)),
				zap.String("sample", r.Unit.Sample),
				zap.Error(r.Err))
			rep.Failed = append(rep.Failed, r.Unit.Sample)
			return nil
		}
		path, err := writer.WriteUnit(r.Unit)
		if err != nil {
			logger.Error("sample file not written",
				zap.String("tool", string(tool)),
				zap.String("sample", r.Unit.Sample),
				zap.Error(err))
			rep.Failed = append(rep.Failed, r.Unit.Sample)
			return nil
		}
		rep.Succeeded++
		files = append(files, path)
		return nil
	})

	logger.Info("per-sample files created",
		zap.String("tool", string(tool)),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("submitted", rep.Submitted))
	return rep, files
}
