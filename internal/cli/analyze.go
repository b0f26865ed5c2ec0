package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <company_id> <fiscal_year> <split>",
	Short: "Extract the standard data points from a filing",
	Long: `Indexes the filing and answers the standard questions: total stockholders,
employee headcount, net sales, total cash and cash equivalents and the quarterly
cash dividend.`,
	Args: filingArgs(0),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	id, err := parseIdentity(args)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, app *App) error {
		report, err := app.Service.AnalyzeFiling(ctx, id)
		if err != nil {
			return fmt.Errorf("analyze failed: %w", err)
		}
		if analyzeJSON {
			return printJSON(cmd, report)
		}
		printf(cmd, "Filing %s\n", id)
		if report.Overview != "" {
			printf(cmd, "\n%s\n", report.Overview)
		}
		for _, r := range report.Results {
			printf(cmd, "\n%s\n  Q: %s\n  A: ", r.Label, r.Question)
			printAnswer(cmd, r.Answer)
		}
		return nil
	})
}
