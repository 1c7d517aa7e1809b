package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-pipeline/cmd/slide-pipeline/ui"
)

var embedLimit int

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed extracted slide text and promote fully embedded documents",
	RunE:  runEmbed,
}

func init() {
	embedCmd.Flags().IntVar(&embedLimit, "limit", 0, "maximum number of slides (0 means all)")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	engine := a.embeddingEngine()

	var bar *ui.ProgressBar
	engine.Progress = func(done, total int) {
		if bar == nil {
			bar = ui.NewProgressBar(int64(total), "slides")
		}
		bar.Set(int64(done))
	}

	summary, err := engine.Run(ctx, embedLimit)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}

	if jsonOutput {
		return printJSON(summary)
	}
	ui.EmbeddingSummary(summary)
	return nil
}
