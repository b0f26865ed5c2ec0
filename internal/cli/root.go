// Package cli implements the edgarqa command line.
package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"edgarqa/internal/config"
	"edgarqa/internal/domain"
	"edgarqa/internal/logger"
)

var (
	configPath string
	logLevel   string

	appConfig *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "edgarqa",
	Short: "Question answering over SEC 10-K filings",
	Long: `edgarqa downloads annual reports from the EDGAR-CORPUS dataset, splits
them into chunks, indexes the chunks in a vector store and answers questions
about a single filing with retrieval-augmented generation.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/edgarqa/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	var err error
	if configPath == "" {
		appConfig, _, err = config.LoadDefault()
	} else {
		appConfig, err = config.Load(configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		appConfig.Log.Level = logLevel
	}
	logger.InitWithWriter(cmd.ErrOrStderr(), appConfig.Log.Level, appConfig.Log.Format)
	return nil
}

// withApp builds the pipeline for one command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := Build(ctx, appConfig)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(logger.WithRun(ctx), app)
}

// filingArgs accepts <company_id> <fiscal_year> <split> followed by extra.
func filingArgs(extra int) cobra.PositionalArgs {
	return cobra.MinimumNArgs(3 + extra)
}

func parseIdentity(args []string) (domain.Identity, error) {
	year, err := strconv.Atoi(args[1])
	if err != nil {
		return domain.Identity{}, fmt.Errorf("invalid fiscal year %q", args[1])
	}
	split, err := domain.ParseSplit(args[2])
	if err != nil {
		return domain.Identity{}, err
	}
	id := domain.Identity{CompanyID: args[0], FiscalYear: year, Split: split}
	return id, id.Validate()
}
