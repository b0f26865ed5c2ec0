package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"edgarqa/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves POST /api/v1/index, /api/v1/ask and /api/v1/analyze, plus /healthz
and Prometheus metrics on /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveAddr != "" {
		appConfig.Server.Addr = serveAddr
	}
	return withApp(cmd, func(ctx context.Context, app *App) error {
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		srv := server.New(app.Service, app.Metrics, app.Registry, server.Config{Addr: appConfig.Server.Addr})
		return srv.Run(ctx)
	})
}
