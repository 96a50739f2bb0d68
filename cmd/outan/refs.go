package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rnaxplore/outan/internal/refs"
)

func newRefsCmd() *cobra.Command {
	var (
		check      bool
		force      bool
		buildCache bool
	)

	cmd := &cobra.Command{
		Use:   "refs",
		Short: "Download and maintain reference data",
		Long: `Download the reference data the annotate command needs into the
references directory:

  - GENCODE v44 gene annotation
  - gnomAD v2.1.1 per-gene constraint metrics
  - PanelApp Australia Mendeliome panel

Files already present are kept; the panel is refreshed only when the
remote version changed.`,
		Example: `  outan refs                # download whatever is missing
  outan refs --check        # show reference status without downloading
  outan refs --force        # refresh everything
  outan refs --build-cache  # pre-build the gene and constraint caches`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync()

			m := refs.NewManager(referencesDir())
			m.SetLogger(logger)
			m.SetForce(force)

			if check {
				for _, st := range m.Check(cmd.Context()) {
					state := "missing"
					age := "-"
					if st.Present {
						state = refs.FormatSize(st.Size)
						age = refs.FormatAge(st.Age)
					}
					fmt.Printf("%-20s %-10s %-5s %s", st.Name, state, age, st.Path)
					if st.Detail != "" {
						fmt.Printf("  (%s)", st.Detail)
					}
					fmt.Println()
				}
				return nil
			}

			if buildCache {
				if err := m.EnsureGencode(cmd.Context()); err != nil {
					return err
				}
				genes, err := m.BuildGeneCache()
				if err != nil {
					return err
				}
				fmt.Printf("Gene cache built: %d genes\n", genes)

				if err := m.EnsureGnomad(cmd.Context()); err != nil {
					return err
				}
				rows, err := m.BuildConstraintStore()
				if err != nil {
					return err
				}
				fmt.Printf("Constraint store built: %d rows\n", rows)
				return nil
			}

			if err := m.EnsureAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("References ready in %s\n", m.Dir())
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "show reference status without downloading")
	cmd.Flags().BoolVar(&force, "force", false, "redownload references that are already present")
	cmd.Flags().BoolVar(&buildCache, "build-cache", false, "build the gene index cache and the DuckDB constraint store")

	return cmd
}
