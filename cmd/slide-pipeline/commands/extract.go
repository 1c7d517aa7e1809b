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
	extractLimit       int
	extractIDs         []string
	extractNote        string
	extractOverwrite   string
	extractRetryFailed bool
	extractStrategy    string
	extractModel       string
	extractRefresh     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract one slide per page from registered documents",
	Long: `Extract renders every page of each selected document and stores one slide
per page. Without --ids the run selects documents that are still downloaded
(plus failed_parsed ones with --retry-failed) and advances their status.
Explicit --ids reprocess exactly those documents and leave their status alone.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().IntVar(&extractLimit, "limit", 0, "maximum number of documents (0 uses the configured default)")
	extractCmd.Flags().StringSliceVar(&extractIDs, "ids", nil, "explicit document IDs to reprocess")
	extractCmd.Flags().StringVar(&extractNote, "note", "", "free-text note stored on every slide")
	extractCmd.Flags().StringVar(&extractOverwrite, "overwrite", "", "overwrite mode: document, model or none")
	extractCmd.Flags().BoolVar(&extractRetryFailed, "retry-failed", false, "also select documents in failed_parsed")
	extractCmd.Flags().StringVar(&extractStrategy, "strategy", "", "extraction strategy: vlm or converter")
	extractCmd.Flags().StringVar(&extractModel, "model", "", "vision model id (vlm strategy)")
	extractCmd.Flags().BoolVar(&extractRefresh, "refresh-cache", false, "ignore cached page results")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	req := extract.Request{
		Limit:       extractLimit,
		DocumentIDs: extractIDs,
		Note:        extractNote,
		Overwrite:   domain.OverwriteMode(extractOverwrite),
		RetryFailed: extractRetryFailed,
		Strategy:    extract.Strategy(extractStrategy),
		Model:       extractModel,

		RefreshCache: extractRefresh,
	}

	service := a.extractionService()
	summary, err := runWithProgress(ctx, func(ctx context.Context, eventCh chan<- domain.StreamEvent) (*extract.Summary, error) {
		return service.RunExtraction(ctx, req, eventCh)
	})
	if err != nil {
		if summary != nil && !jsonOutput {
			ui.ExtractionSummary(summary)
		}
		return fmt.Errorf("extraction: %w", err)
	}

	if jsonOutput {
		return printJSON(summary)
	}
	ui.ExtractionSummary(summary)
	return nil
}

// runWithProgress drives a document progress bar from the run's event
// stream. The channel is closed once the run returns.
func runWithProgress[T any](ctx context.Context, run func(context.Context, chan<- domain.StreamEvent) (T, error)) (T, error) {
	eventCh := make(chan domain.StreamEvent, 100)

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := run(ctx, eventCh)
		close(eventCh)
		done <- result{v, err}
	}()

	var bar *ui.ProgressBar
	for event := range eventCh {
		switch event.Type {
		case domain.EventStart:
			if bar != nil {
				bar.Finish()
			}
			bar = ui.NewProgressBar(int64(event.TotalPages), "documents")
		case domain.EventDocumentStart:
			if bar != nil {
				bar.Describe(fmt.Sprintf("%v", event.Payload))
			}
		case domain.EventPageFailed:
			ui.Verbose("page %d of %s failed: %v", event.PageNumber, event.DocumentID, event.Payload)
		case domain.EventDocumentDone:
			if bar != nil {
				bar.Add(1)
			}
		case domain.EventComplete, domain.EventError:
			if bar != nil {
				bar.Finish()
				bar = nil
			}
		}
	}
	if bar != nil {
		bar.Finish()
	}

	r := <-done
	return r.value, r.err
}
