package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-pipeline/cmd/slide-pipeline/ui"
	"github.com/spherical/slide-pipeline/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the documents and slides tables if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, dialect, err := storage.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("database connection: %w", err)
		}
		store := storage.NewStore(db, dialect)
		defer store.Close()

		if err := store.EnsureSchema(cmd.Context(), cfg.Embedding.Dimension); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		ui.Success("Schema ready (%s, vector dimension %d)", store.Dialect(), cfg.Embedding.Dimension)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
