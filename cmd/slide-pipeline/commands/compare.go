package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-pipeline/cmd/slide-pipeline/ui"
	"github.com/spherical/slide-pipeline/internal/domain"
	"github.com/spherical/slide-pipeline/internal/extract"
)

var (
	compareModels []string
	compareLimit  int
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run vision extraction once per model for side-by-side review",
	Long: `Compare extracts the selected documents once per model. Each model's slides
replace only that model's previous slides, and document status is never
changed by a comparison run.`,
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringSliceVar(&compareModels, "models", nil, "vision model ids to compare (required)")
	compareCmd.Flags().IntVar(&compareLimit, "limit", 0, "maximum number of documents (0 means all)")
	compareCmd.MarkFlagRequired("models")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	service := a.extractionService()
	summary, err := runWithProgress(ctx, func(ctx context.Context, eventCh chan<- domain.StreamEvent) (*extract.ComparisonSummary, error) {
		return service.RunComparison(ctx, compareModels, compareLimit, eventCh)
	})
	if err != nil {
		return fmt.Errorf("comparison: %w", err)
	}

	if jsonOutput {
		return printJSON(summary)
	}
	ui.ComparisonSummary(summary)
	return nil
}
