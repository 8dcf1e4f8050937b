package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/clock-correlator/ephem"
	"github.com/signalsfoundry/clock-correlator/internal/config"
	"github.com/signalsfoundry/clock-correlator/model"
)

func seedCmd() *cobra.Command {
	var (
		sclkCoarse int64
		tdt        float64
		utc        string
		rate       string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the initial correlation history record",
		Long: `Write the seed record every later correlation is checked against.
A history can be seeded once.

Examples:
  # Zero seed: the first correlation only needs to be positive
  mmtc seed -c mmtc.yaml --sclk 0 --tdt 0

  # Seed from a known clock reading and its UTC ground time
  mmtc seed -c mmtc.yaml --sclk 375000000 --utc 2024-01-01T00:00:00Z --rate 1.00000001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("tdt") && utc != "" {
				return fmt.Errorf("--tdt and --utc are mutually exclusive")
			}
			if _, err := decimal.NewFromString(rate); err != nil {
				return fmt.Errorf("invalid --rate %q: %w", rate, err)
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if utc != "" {
				t, err := config.ParseTime(utc)
				if err != nil {
					return err
				}
				if tdt, err = ephem.UTCToTDT(t); err != nil {
					return err
				}
			}
			encoded, err := a.times.EncodeSCLK(sclkCoarse, 0)
			if err != nil {
				return err
			}

			rec, err := a.history.Seed(ctx, model.HistoryRecord{
				SclkCoarse:      sclkCoarse,
				EncodedSclk:     encoded,
				TdtG:            tdt,
				ClockChangeRate: rate,
				RateMode:        model.RateModeAssigned,
				CreatedAt:       time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			return outputResult(cmd.OutOrStdout(), newHistoryRows([]model.HistoryRecord{rec})[0], outputFmt)
		},
	}

	cmd.Flags().Int64Var(&sclkCoarse, "sclk", 0, "Coarse spacecraft clock of the seed")
	cmd.Flags().Float64Var(&tdt, "tdt", 0, "Ground time of the seed, TDT seconds past J2000")
	cmd.Flags().StringVar(&utc, "utc", "", "Ground time of the seed as a UTC time")
	cmd.Flags().StringVar(&rate, "rate", "1", "Clock change rate of the seed")

	return cmd
}
