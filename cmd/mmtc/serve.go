package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/internal/config"
	"github.com/signalsfoundry/clock-correlator/internal/logging"
	"github.com/signalsfoundry/clock-correlator/internal/observability"
	"github.com/signalsfoundry/clock-correlator/internal/telemetry/feed"
	"github.com/signalsfoundry/clock-correlator/timectrl"
)

func serveCmd() *cobra.Command {
	var (
		interval    time.Duration
		span        time.Duration
		metricsAddr string
		feedAddr    string
		replayFrom  string
		replayUntil string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Correlate periodically and commit accepted results",
		Long: `Run a correlation attempt every interval over the preceding span of
telemetry and commit each accepted result to the history. Failed attempts
are logged and counted; the next interval tries again.

With --replay-from the controller runs in accelerated mode over past
telemetry instead of following the wall clock.

Examples:
  # Hourly correlations over the last day, metrics on :9090
  mmtc serve -c mmtc.yaml --interval 1h --span 24h --metrics-addr :9090

  # Rebuild a week of history from archived telemetry
  mmtc serve -c mmtc.yaml --replay-from 2024-03-01T00:00:00Z --replay-until 2024-03-08T00:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			sc := a.cfg.Serve
			if cmd.Flags().Changed("interval") {
				sc.Interval = interval
			}
			if cmd.Flags().Changed("span") {
				sc.Span = span
			}
			if cmd.Flags().Changed("metrics-addr") {
				sc.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("feed-addr") {
				sc.FeedAddr = feedAddr
			}
			if sc.Interval <= 0 {
				return fmt.Errorf("serve interval must be positive, got %s", sc.Interval)
			}

			from, err := config.ParseTime(replayFrom)
			if err != nil {
				return fmt.Errorf("--replay-from: %w", err)
			}
			until, err := config.ParseTime(replayUntil)
			if err != nil {
				return fmt.Errorf("--replay-until: %w", err)
			}
			if from.IsZero() != until.IsZero() || (!from.IsZero() && !from.Before(until)) {
				return fmt.Errorf("--replay-from and --replay-until must both be set, from before until")
			}

			return runServe(ctx, a, sc, from, until)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "Time between correlation attempts")
	cmd.Flags().DurationVar(&span, "span", 24*time.Hour, "Telemetry look-back of each attempt")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the Prometheus /metrics endpoint")
	cmd.Flags().StringVar(&feedAddr, "feed-addr", "", "Address to re-serve the telemetry source as a gRPC feed")
	cmd.Flags().StringVar(&replayFrom, "replay-from", "", "Replay start time (accelerated mode)")
	cmd.Flags().StringVar(&replayUntil, "replay-until", "", "Replay end time (accelerated mode)")

	return cmd
}

func runServe(ctx context.Context, a *app, sc config.ServeConfig, replayFrom, replayUntil time.Time) error {
	log := a.log

	tracingCfg, err := observability.TracingConfigFromEnv()
	if err != nil {
		return err
	}
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewCorrelationCollector(reg)
	if err != nil {
		return fmt.Errorf("register correlation metrics: %w", err)
	}
	historyMetrics, err := observability.NewHistoryCollector(reg)
	if err != nil {
		return fmt.Errorf("register history metrics: %w", err)
	}
	hist := observability.InstrumentHistory(a.history, historyMetrics)

	metricsSrv := serveMetrics(sc.MetricsAddr, collector, log)
	defer shutdownHTTP(metricsSrv)

	feedSrv, err := serveFeed(sc.FeedAddr, a.source, collector, log)
	if err != nil {
		return err
	}
	if feedSrv != nil {
		defer feedSrv.GracefulStop()
	}

	svc := core.NewService(a.core, sc.Span, a.source, a.times, a.stations, hist, log,
		core.WithRecorder(collector))

	var (
		tc       *timectrl.TimeController
		duration time.Duration
	)
	if replayFrom.IsZero() {
		now := time.Now().UTC()
		tc = timectrl.NewTimeController(now, sc.Interval, timectrl.RealTime)
		// Run once at startup rather than waiting a full interval.
		if err := runAttempt(svc, log)(ctx, now); err != nil {
			return err
		}
	} else {
		tc = timectrl.NewTimeController(replayFrom, sc.Interval, timectrl.Accelerated)
		duration = replayUntil.Sub(replayFrom)
	}
	tc.AddListener(runAttempt(svc, log))

	log.Info(ctx, "correlation service started",
		logging.String("mode", tc.Mode.String()),
		logging.Duration("interval", sc.Interval),
		logging.Duration("span", sc.Span),
	)
	if err := tc.Run(ctx, duration); err != nil {
		return err
	}
	log.Info(ctx, "correlation service stopped", logging.Time("sim_time", tc.Now()))
	return nil
}

// runAttempt returns the per-tick listener. Attempt failures are logged by
// the correlator and do not stop the service; only cancellation does.
func runAttempt(svc *core.Service, log logging.Logger) timectrl.Listener {
	return func(ctx context.Context, now time.Time) error {
		_, _, err := svc.RunAt(ctx, now)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if !core.IsNoValidSampleSet(err) {
			log.Warn(ctx, "scheduled correlation failed",
				logging.Time("as_of", now),
				logging.Error(err),
			)
		}
		return nil
	}
}

func serveMetrics(addr string, collector *observability.CorrelationCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Error(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func shutdownHTTP(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func serveFeed(addr string, source core.TelemetrySource, collector *observability.CorrelationCollector, log logging.Logger) (*grpc.Server, error) {
	if addr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	gs := feed.NewGRPCServer(feed.NewServer(source, log), log, collector)
	go func() {
		if err := gs.Serve(lis); err != nil {
			log.Warn(context.Background(), "telemetry feed server exited", logging.Error(err))
		}
	}()
	log.Info(context.Background(), "serving telemetry feed", logging.String("addr", lis.Addr().String()))
	return gs, nil
}
