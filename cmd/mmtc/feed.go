package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/clock-correlator/internal/observability"
)

func feedCmd() *cobra.Command {
	var (
		addr        string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Serve the configured telemetry source over gRPC",
		Long: `Serve the configured telemetry source as a gRPC telemetry feed so that
correlators on other hosts can read it with the feed backend.

Examples:
  # Publish a SQLite telemetry archive
  mmtc feed -c archive.yaml --addr :7070 --metrics-addr :9091`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				return errors.New("--addr is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			collector, err := observability.NewCorrelationCollector(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			metricsSrv := serveMetrics(metricsAddr, collector, a.log)
			defer shutdownHTTP(metricsSrv)

			gs, err := serveFeed(addr, a.source, collector, a.log)
			if err != nil {
				return err
			}
			<-ctx.Done()
			gs.GracefulStop()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":7070", "Address to serve the telemetry feed on")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the Prometheus /metrics endpoint")

	return cmd
}
