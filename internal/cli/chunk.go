package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	chunkMethod string
	chunkJSON   bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <company_id> <fiscal_year> <split>",
	Short: "Split a filing into chunks",
	Long: `Fetches a filing and segments every section with the configured method
(fixed-window, discourse or token-window). The chunk bundle is cached in the
bundle store and reused by later commands.`,
	Args: filingArgs(0),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().StringVarP(&chunkMethod, "method", "m", "", "segmentation method (overrides config)")
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "print the full chunk bundle as JSON")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, args []string) error {
	id, err := parseIdentity(args)
	if err != nil {
		return err
	}
	if chunkMethod != "" {
		appConfig.Chunker.Method = chunkMethod
	}
	return withApp(cmd, func(ctx context.Context, app *App) error {
		res, err := app.Service.Chunk(ctx, id)
		if err != nil {
			return fmt.Errorf("chunk failed: %w", err)
		}
		if chunkJSON {
			return printJSON(cmd, res.Filing)
		}
		printf(cmd, "Filing %s: %d chunks\n", id, res.Filing.TotalChunks)
		for _, key := range res.Filing.SectionKeys() {
			sec := res.Filing.Sections[key]
			printf(cmd, "  %-12s %-60.60s %4d\n", key, sec.ItemName, len(sec.Chunks))
		}
		for _, key := range res.Skipped {
			printf(cmd, "  %-12s skipped (empty)\n", key)
		}
		for _, f := range res.Failures {
			printf(cmd, "  %-12s failed: %v\n", f.Section, f.Err)
		}
		return nil
	})
}
