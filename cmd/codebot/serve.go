package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codebot/internal/api"
	"codebot/internal/metrics"
	"codebot/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve scans over HTTP",
	Long: `Starts the HTTP API:

  POST /api/scan   run one scan chunk
  GET  /healthz    liveness
  GET  /metrics    Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from server.addr)")
	serveCmd.Flags().Int("metrics-port", 0, "Also serve /metrics on this port (default from metrics_port, 0 disables)")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("metrics_port", serveCmd.Flags().Lookup("metrics-port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := settings()
	if err != nil {
		return err
	}
	logger := slog.Default()
	m := metrics.NewMetrics()

	scanner, cleanup, err := newScanner(cfg, newGitHubSource(cfg.GitHub, logger), logger, m)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			if err := telemetry.StartMetricsServer(ctx, addr, m.Handler(), logger); err != nil {
				logger.Error("Metrics server failed", "addr", addr, "error", err)
			}
		}()
	}

	srv := api.NewServer(scanner, cfg.Server.Addr, m, logger)
	srv.ScanTimeout = cfg.Server.ScanTimeout
	return srv.Start(ctx)
}
