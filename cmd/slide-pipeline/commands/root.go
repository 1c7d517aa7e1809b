// Package commands implements the slide-pipeline CLI.
package commands

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/spherical/slide-pipeline/cmd/slide-pipeline/ui"
	"github.com/spherical/slide-pipeline/internal/config"
	"github.com/spherical/slide-pipeline/internal/observability"
)

var (
	cfgFile     string
	verbose     bool
	noColor     bool
	jsonOutput  bool
	autoMigrate bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "slide-pipeline",
	Short: "Slide ingestion pipeline - PDF pages to searchable, embedded slides",
	Long: `slide-pipeline registers PDF documents, extracts one text slide per page
using a vision-language model or a document converter, and embeds the
extracted text for retrieval. Each document moves through the
downloaded → parsed → embedded lifecycle as runs complete.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load() // Ignore error if .env doesn't exist

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Log.Level = "debug"
		}
		if loaded.Database.SQLite.Path != ":memory:" {
			loaded.Database.SQLite.Path = config.ResolveRelativePath(cfgFile, loaded.Database.SQLite.Path)
		}
		loaded.Extraction.OutputRoot = config.ResolveRelativePath(cfgFile, loaded.Extraction.OutputRoot)
		cfg = loaded

		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Log.Level,
			Format:      cfg.Log.Format,
			Output:      os.Stderr,
			ServiceName: "slide-pipeline",
		})

		ui.Init(noColor, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output and debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print the run summary as JSON")
	rootCmd.PersistentFlags().BoolVar(&autoMigrate, "auto-migrate", true, "create missing tables before running")
}

// Execute runs the root command.
func Execute(ctx context.Context, version string) error {
	rootCmd.Version = version
	return rootCmd.ExecuteContext(ctx)
}
