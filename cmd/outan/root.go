package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rnaxplore/outan/internal/refs"
)

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "outan",
		Short: "Annotate RNA-seq outlier calls with gene, constraint and disease-panel evidence",
		Long: `outan annotates FRASER splicing and OUTRIDER expression outlier tables
with GENCODE gene metadata, gnomAD constraint metrics and PanelApp
Mendeliome disease evidence, then writes one file per sample of
interest.`,
		Example: `  # Download reference data (one-time setup)
  outan refs

  # Annotate both callers for the samples listed in samples.txt
  outan annotate --fraser fraser_results.tsv --outrider outrider_results.tsv \
    --samples samples.txt

  # Annotate everything inside a result archive
  outan annotate --zip-input run.zip --match all

  # Prioritize an annotated table
  outan filter --prioritize 23D1192.outrider.tab`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("references", "", `references directory (default "references")`)
	viper.BindPFlag("references.dir", root.PersistentFlags().Lookup("references"))

	cobra.OnInitialize(initConfig)

	root.AddCommand(newAnnotateCmd())
	root.AddCommand(newRefsCmd())
	root.AddCommand(newFilterCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// initConfig loads ~/.outan.yaml and binds OUTAN_* environment variables.
func initConfig() {
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.SetConfigName(".outan")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("OUTAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: could not read config: %v\n", err)
		}
	}
}

// Config mirrors the settings outan reads from ~/.outan.yaml.
type Config struct {
	References struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"references"`
	Annotate struct {
		Padjust float64 `mapstructure:"padjust"`
		Workers int     `mapstructure:"workers"`
		Match   string  `mapstructure:"match"`
	} `mapstructure:"annotate"`
}

func loadConfig() Config {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not decode config: %v\n", err)
	}
	return cfg
}

func referencesDir() string {
	if dir := viper.GetString("references.dir"); dir != "" {
		return dir
	}
	return refs.DefaultDir
}

// newLogger builds the CLI's console logger on stderr.
func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
