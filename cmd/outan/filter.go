package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rnaxplore/outan/internal/filter"
	"github.com/rnaxplore/outan/internal/results"
)

func newFilterCmd() *cobra.Command {
	var (
		outputDir  string
		typeName   string
		prioritize bool
		padjust    float64
		zscore     float64
		deltapsi   float64
		pli        float64
		confidence []string
	)

	cmd := &cobra.Command{
		Use:   "filter <annotated-table>",
		Short: "Filter and prioritize an annotated results table",
		Long: `Filter an annotated FRASER or OUTRIDER table by significance, effect
size, gnomAD constraint and PanelApp confidence. With --prioritize all
filters apply together; otherwise only the thresholds given on the
command line apply. The surviving rows are written sorted by padjust.`,
		Example: `  outan filter --prioritize output/per_sample_files/23D1192.fraser.tab
  outan filter --padjust 0.01 fraser_annotated.tsv
  outan filter --prioritize --zscore 3.0 --type outrider htseq_counts.tsv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync()

			inputPath := args[0]

			var override results.Tool
			if typeName != "" {
				tool, err := results.ParseTool(typeName)
				if err != nil {
					return err
				}
				override = tool
			}

			table, err := filter.Load(inputPath, override)
			if err != nil {
				return err
			}

			var crit filter.Criteria
			if prioritize {
				crit = filter.Defaults()
				crit.MaxPadjust = filter.Threshold(padjust)
				crit.MinZScore = filter.Threshold(zscore)
				crit.MinDeltaPsi = filter.Threshold(deltapsi)
				crit.MinPLI = filter.Threshold(pli)
				crit.Confidence = confidence
			} else {
				if cmd.Flags().Changed("padjust") {
					crit.MaxPadjust = filter.Threshold(padjust)
				}
				if cmd.Flags().Changed("zscore") {
					crit.MinZScore = filter.Threshold(zscore)
				}
				if cmd.Flags().Changed("deltapsi") {
					crit.MinDeltaPsi = filter.Threshold(deltapsi)
				}
				if cmd.Flags().Changed("pli") {
					crit.MinPLI = filter.Threshold(pli)
				}
				if cmd.Flags().Changed("confidence") {
					crit.Confidence = confidence
				}
			}

			out, err := filter.Prioritize(table, crit, logger)
			if err != nil {
				return err
			}

			summary := filter.Summarize(table, out)
			fmt.Printf("Table type:       %s\n", table.Tool)
			fmt.Printf("Total rows:       %d\n", summary.Total)
			fmt.Printf("Kept rows:        %d\n", summary.Kept)
			fmt.Printf("Distinct samples: %d\n", summary.Samples)
			fmt.Printf("Distinct genes:   %d\n", summary.Genes)

			outPath := filter.OutputPath(inputPath, outputDir)
			if err := filter.WriteTable(out, outPath); err != nil {
				return err
			}
			fmt.Printf("Saved %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: next to the input)")
	cmd.Flags().StringVar(&typeName, "type", "", "table type: fraser or outrider (default: detect from columns)")
	cmd.Flags().BoolVar(&prioritize, "prioritize", false, "apply all filters together")
	cmd.Flags().Float64Var(&padjust, "padjust", 0.05, "keep rows with padjust below this value")
	cmd.Flags().Float64Var(&zscore, "zscore", 2.0, "keep rows with |zScore| above this value (outrider)")
	cmd.Flags().Float64Var(&deltapsi, "deltapsi", 0.3, "keep rows with |deltaPsi| above this value (fraser)")
	cmd.Flags().Float64Var(&pli, "pli", 0.9, "keep rows with pLI above this value")
	cmd.Flags().StringSliceVar(&confidence, "confidence", []string{"green", "amber"}, "panel confidence levels to keep")

	return cmd
}
