package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var indexJSON bool

var indexCmd = &cobra.Command{
	Use:   "index <company_id> <fiscal_year> <split>",
	Short: "Embed a filing and store its vectors",
	Args:  filingArgs(0),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output the index report as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	id, err := parseIdentity(args)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, app *App) error {
		report, err := app.Service.IndexFiling(ctx, id)
		if err != nil {
			return fmt.Errorf("index failed: %w", err)
		}
		if indexJSON {
			return printJSON(cmd, report)
		}
		if report.AlreadyIndexed {
			printf(cmd, "Filing %s is already indexed in namespace %q.\n", id, app.Service.Namespace())
			return nil
		}
		printf(cmd, "Indexed %s: %d sections, %d vectors, %d failed batches.\n",
			id, report.Sections, report.Vectors, report.FailedBatches)
		if len(report.SkippedSections) > 0 {
			printf(cmd, "Skipped: %v\n", report.SkippedSections)
		}
		return nil
	})
}
