package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"edgarqa/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui <company_id> <fiscal_year> <split>",
	Short: "Ask questions about a filing interactively",
	Long: `Indexes the filing, then opens a terminal UI for asking questions about it.

Controls:
  Enter    - Ask
  ↑/↓      - Browse earlier answers
  Ctrl+C   - Quit`,
	Args: filingArgs(0),
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	id, err := parseIdentity(args)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, app *App) error {
		if _, err := app.Service.IndexFiling(ctx, id); err != nil {
			return fmt.Errorf("index failed: %w", err)
		}
		m := tui.New(ctx, app.Service, id, app.Service.Overview(ctx, id))
		if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	})
}
