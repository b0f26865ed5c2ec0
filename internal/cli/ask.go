package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"edgarqa/internal/answer"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask <company_id> <fiscal_year> <split> <question...>",
	Short: "Answer a question about one filing",
	Long: `Indexes the filing when needed, retrieves the most relevant chunks of that
filing only and answers from them. Chunk ids of the supporting passages are
listed with the answer.`,
	Args: filingArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	id, err := parseIdentity(args)
	if err != nil {
		return err
	}
	question := strings.Join(args[3:], " ")
	return withApp(cmd, func(ctx context.Context, app *App) error {
		if _, err := app.Service.IndexFiling(ctx, id); err != nil {
			return fmt.Errorf("index failed: %w", err)
		}
		a, err := app.Service.Ask(ctx, id, question)
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}
		if askJSON {
			return printJSON(cmd, a)
		}
		printAnswer(cmd, a)
		return nil
	})
}

func printAnswer(cmd *cobra.Command, a answer.Answer) {
	printf(cmd, "%s\n", a.Text)
	if len(a.ChunkIDs) > 0 {
		printf(cmd, "Sources: %s\n", strings.Join(a.ChunkIDs, ", "))
	}
}
