package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rnaxplore/outan/internal/archive"
	"github.com/rnaxplore/outan/internal/pipeline"
	"github.com/rnaxplore/outan/internal/refs"
	"github.com/rnaxplore/outan/internal/results"
)

func newAnnotateCmd() *cobra.Command {
	var (
		gtfPath      string
		gnomadPath   string
		constraintDB string
		panelPath    string
		fraserPath   string
		outriderPath string
		zipInput     string
		sampleFile   string
		match        string
		padjust      float64
		outputDir    string
		workers      int
		zipOutput    bool
		noGeneCache  bool
	)

	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate FRASER and OUTRIDER results per sample",
		Long: `Annotate RNA-seq outlier tables with gene coordinates, gnomAD constraint
metrics and PanelApp Mendeliome evidence, optionally keep only rows below
a padjust cutoff, and write one annotated file per requested sample.

Reference files default to the references directory (see "outan refs").`,
		Example: `  outan annotate --fraser fraser_results.tsv --samples samples.txt
  outan annotate --zip-input run.zip --match all -o annotated/
  outan annotate --outrider outrider_results.tsv --samples ids.txt --match partial`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync()

			cfg := loadConfig()
			var padjustCut *float64
			switch {
			case cmd.Flags().Changed("padjust"):
				if padjust > 0 {
					padjustCut = &padjust
				}
			case cfg.Annotate.Padjust > 0:
				padjustCut = &cfg.Annotate.Padjust
			}
			if !cmd.Flags().Changed("workers") && cfg.Annotate.Workers > 0 {
				workers = cfg.Annotate.Workers
			}
			if !cmd.Flags().Changed("match") && cfg.Annotate.Match != "" {
				match = cfg.Annotate.Match
			}

			mode, err := results.ParseMatchMode(match)
			if err != nil {
				return err
			}

			if zipInput != "" {
				found, cleanup, err := unpackResults(zipInput)
				if err != nil {
					return err
				}
				defer cleanup()
				if fraserPath == "" {
					fraserPath = found[results.ToolFraser]
				}
				if outriderPath == "" {
					outriderPath = found[results.ToolOutrider]
				}
			}

			manager := refs.NewManager(referencesDir())
			if gtfPath == "" {
				gtfPath = manager.GTFPath()
			}
			if gnomadPath == "" && constraintDB == "" {
				if _, err := os.Stat(manager.ConstraintDBPath()); err == nil {
					constraintDB = manager.ConstraintDBPath()
				}
				if _, err := os.Stat(manager.GnomadPath()); err == nil {
					gnomadPath = manager.GnomadPath()
				}
			}
			if panelPath == "" {
				if _, err := os.Stat(manager.PanelPath()); err == nil {
					panelPath = manager.PanelPath()
				}
			}

			p, err := pipeline.New(pipeline.Options{
				GTFPath:          gtfPath,
				GnomadPath:       gnomadPath,
				ConstraintDB:     constraintDB,
				PanelPath:        panelPath,
				FraserPath:       fraserPath,
				OutriderPath:     outriderPath,
				SampleFile:       sampleFile,
				Match:            mode,
				PadjustCut:       padjustCut,
				OutputDir:        outputDir,
				Workers:          workers,
				Zip:              zipOutput,
				DisableGeneCache: noGeneCache,
			})
			if err != nil {
				return err
			}
			p.SetLogger(logger)

			report, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}

			printReport(report)
			return report.Err()
		},
	}

	cmd.Flags().StringVar(&gtfPath, "gtf", "", "GENCODE annotation GTF (default from references dir)")
	cmd.Flags().StringVar(&gnomadPath, "gnomad", "", "gnomAD constraint table (default from references dir)")
	cmd.Flags().StringVar(&constraintDB, "constraint-db", "", "DuckDB constraint store, built on first use")
	cmd.Flags().StringVar(&panelPath, "panel", "", "PanelApp panel JSON (default from references dir)")
	cmd.Flags().StringVar(&fraserPath, "fraser", "", "FRASER results table (.tsv, .tab; gzip ok)")
	cmd.Flags().StringVar(&outriderPath, "outrider", "", "OUTRIDER results table (.tsv, .tab; gzip ok)")
	cmd.Flags().StringVar(&zipInput, "zip-input", "", "zip archive holding the results tables")
	cmd.Flags().StringVar(&sampleFile, "samples", "", "file with one sample id per line")
	cmd.Flags().StringVar(&match, "match", string(results.MatchExact), "sample matching: exact, partial or all")
	cmd.Flags().Float64Var(&padjust, "padjust", 0, "keep only rows with padjust below this cutoff (0 disables)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "output", "output directory")
	cmd.Flags().IntVar(&workers, "workers", pipeline.DefaultWorkers(), "annotation workers")
	cmd.Flags().BoolVar(&zipOutput, "zip", true, "bundle per-sample files into a run archive")
	cmd.Flags().BoolVar(&noGeneCache, "no-gene-cache", false, "parse the GTF without the gob cache")

	return cmd
}

// unpackResults extracts a results archive into a temp directory and locates
// the FRASER and OUTRIDER tables inside it.
func unpackResults(zipPath string) (map[results.Tool]string, func(), error) {
	dir, err := os.MkdirTemp("", "outan-zip-")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	files, err := archive.ExtractZip(zipPath, dir)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("extract %s: %w", zipPath, err)
	}

	found := archive.FindResults(files)
	if len(found) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("no FRASER or OUTRIDER table found in %s", zipPath)
	}
	return found, cleanup, nil
}

func printReport(report *pipeline.Report) {
	fmt.Fprintf(os.Stderr, "\nRun %s finished in %s\n", report.RunID, report.Elapsed.Round(time.Millisecond))
	for _, tr := range report.Tools {
		if tr.Err != nil {
			fmt.Fprintf(os.Stderr, "  %-8s failed: %v\n", tr.Tool, tr.Err)
			continue
		}
		fmt.Fprintf(os.Stderr, "  %-8s %d/%d sample files\n", tr.Tool, tr.Succeeded, tr.Submitted)
		for _, sample := range tr.Failed {
			fmt.Fprintf(os.Stderr, "           failed: %s\n", sample)
		}
	}
	if report.ZipPath != "" {
		fmt.Fprintf(os.Stderr, "  Archive: %s\n", report.ZipPath)
	}
	for _, note := range report.Notes {
		fmt.Fprintf(os.Stderr, "  Note: %s\n", note)
	}
}
