package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rnaxplore/outan/internal/pipeline"
	"github.com/rnaxplore/outan/internal/refs"
	"github.com/rnaxplore/outan/internal/results"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise the configuration",
		Long: `Print the effective configuration after merging ~/.outan.yaml, OUTAN_*
environment variables and built-in defaults. "config init" writes a
starter config file to edit.`,
		Example: `  outan config        # print the effective configuration
  outan config init   # write a commented ~/.outan.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file := viper.ConfigFileUsed(); file != "" {
				fmt.Printf("# %s\n", file)
			} else {
				fmt.Println("# built-in defaults, no config file found")
			}
			out, err := yaml.Marshal(effectiveConfig())
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}

	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

// effectiveConfig fills the unset fields with the defaults the annotate
// and refs commands would use, so the printed config matches behavior.
func effectiveConfig() Config {
	cfg := loadConfig()
	if cfg.References.Dir == "" {
		cfg.References.Dir = refs.DefaultDir
	}
	if cfg.Annotate.Match == "" {
		cfg.Annotate.Match = string(results.MatchExact)
	}
	if cfg.Annotate.Workers == 0 {
		cfg.Annotate.Workers = pipeline.DefaultWorkers()
	}
	return cfg
}

const configTemplate = `# outan configuration
references:
  # where "outan refs" stores and looks up reference data
  dir: %s
annotate:
  # sample matching mode: exact, partial or all
  match: exact
  # keep only rows below this padjust before partitioning; 0 disables
  padjust: 0
  # annotation worker count
  workers: %d
`

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file to the home directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("locate home directory: %w", err)
			}
			path := filepath.Join(home, ".outan.yaml")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			content := fmt.Sprintf(configTemplate, refs.DefaultDir, pipeline.DefaultWorkers())
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}
