package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/internal/config"
)

func correlateCmd() *cobra.Command {
	var (
		commit    bool
		start     string
		stop      string
		exactTime string
	)

	cmd := &cobra.Command{
		Use:   "correlate",
		Short: "Run one correlation attempt",
		Long: `Run one correlation attempt against the configured telemetry source
and print the target and clock change rate. Nothing is written unless
--commit is given.

Examples:
  # Dry run over the configured range
  mmtc correlate -c mmtc.yaml

  # Correlate a specific day and append to the history
  mmtc correlate -c mmtc.yaml --start 2024-061T00:00:00 --stop 2024-062T00:00:00 --commit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.core
			for _, o := range []struct {
				flag string
				dst  *time.Time
			}{
				{start, &cfg.Selection.Start},
				{stop, &cfg.Selection.Stop},
				{exactTime, &cfg.Selection.ExactTime},
			} {
				if o.flag == "" {
					continue
				}
				t, err := config.ParseTime(o.flag)
				if err != nil {
					return err
				}
				*o.dst = t
			}

			corr, err := core.NewCorrelator(cfg, a.source, a.times, a.stations, a.history, core.WithLogger(a.log))
			if err != nil {
				return err
			}
			res, err := corr.AttemptCorrelation(ctx)
			if err != nil {
				return err
			}

			out := newCorrelationResult(res)
			if commit {
				rec, err := a.history.Commit(ctx, res.Commit(time.Now()))
				if err != nil {
					return fmt.Errorf("commit correlation: %w", err)
				}
				out.Committed = true
				out.Seq = rec.Seq
			}
			return outputResult(cmd.OutOrStdout(), out, outputFmt)
		},
	}

	cmd.Flags().BoolVar(&commit, "commit", false, "Append the accepted correlation to the history")
	cmd.Flags().StringVar(&start, "start", "", "Override the selection start time")
	cmd.Flags().StringVar(&stop, "stop", "", "Override the selection stop time")
	cmd.Flags().StringVar(&exactTime, "exact-time", "", "Select the window whose target sample was received at this time")

	return cmd
}
