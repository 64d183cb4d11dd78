package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Andhanc/minecalc/internal/app"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the price service",
	Long: `Run the long-lived price service: refresh quotes on the configured
interval and serve them over HTTP.

Endpoints:
  GET /api/v1/prices          all latest quotes
  GET /api/v1/prices/{symbol} one quote
  GET /healthz                liveness
  GET /metrics                prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting price service",
		zap.String("version", Version),
		zap.String("listen", cfg.Server.Listen),
		zap.Duration("refresh_interval", cfg.Server.RefreshInterval),
		zap.Int("symbols", len(cfg.Pricing.Symbols)),
	)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("assemble service: %w", err)
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		return err
	}

	logger.Info("price service stopped")
	return nil
}
