package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/slide-pipeline/cmd/slide-pipeline/ui"
	"github.com/spherical/slide-pipeline/internal/catalog"
	"github.com/spherical/slide-pipeline/internal/domain"
)

var (
	registerType       string
	registerSource     string
	registerCollection string
	registerIssuer     string
	registerYear       int
	registerPublishAt  string
)

var registerCmd = &cobra.Command{
	Use:   "register <path>...",
	Short: "Register PDF files or directories as downloaded documents",
	Long: `Register computes the checksum and page count of each PDF and stores it with
status downloaded. Files whose bytes are already registered resolve to the
existing document. Directories are searched recursively for .pdf files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerType, "type", "", "document type: pubex or financial_report (inferred from the name when empty)")
	registerCmd.Flags().StringVar(&registerSource, "source", "", "source label stored in metadata")
	registerCmd.Flags().StringVar(&registerCollection, "collection", "", "collection code")
	registerCmd.Flags().StringVar(&registerIssuer, "issuer", "", "issuer code")
	registerCmd.Flags().IntVar(&registerYear, "year", 0, "document year")
	registerCmd.Flags().StringVar(&registerPublishAt, "publish-at", "", "publication date (YYYY-MM-DD)")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var publishAt *time.Time
	if registerPublishAt != "" {
		t, err := time.Parse(time.DateOnly, registerPublishAt)
		if err != nil {
			return fmt.Errorf("invalid --publish-at: %w", err)
		}
		publishAt = &t
	}

	paths, err := catalog.Expand(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		ui.Warning("No PDF files found")
		return nil
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	c := a.catalog()
	results := make([]*catalog.Result, 0, len(paths))
	var failed int

	spin := ui.NewSpinner("Registering documents...")
	if !jsonOutput {
		spin.Start()
	}
	for i, path := range paths {
		spin.UpdateMessage(fmt.Sprintf("Registering %d/%d %s", i+1, len(paths), path))
		res, err := c.Register(ctx, catalog.Request{
			Path:           path,
			Source:         registerSource,
			CollectionCode: registerCollection,
			IssuerCode:     registerIssuer,
			Year:           registerYear,
			PublishAt:      publishAt,
			Type:           domain.DocumentType(registerType),
		})
		if err != nil {
			if ctx.Err() != nil {
				spin.Stop()
				return ctx.Err()
			}
			failed++
			logger.Warn().Err(err).Str("path", path).Msg("Failed to register document")
			continue
		}
		results = append(results, res)
	}
	spin.Stop()

	if jsonOutput {
		return printJSON(results)
	}

	for _, res := range results {
		ui.RegistrationResult(res.Document.FilePath, res)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be registered", failed, len(paths))
	}
	return nil
}
