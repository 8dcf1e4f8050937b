package main

import (
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the correlation history",
		Long: `List correlation history records, oldest first.

Examples:
  # Show the last ten records
  mmtc history -c mmtc.yaml --last 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.history.Records(ctx)
			if err != nil {
				return err
			}
			if last > 0 && len(records) > last {
				records = records[len(records)-last:]
			}
			return outputResult(cmd.OutOrStdout(), newHistoryRows(records), outputFmt)
		},
	}

	cmd.Flags().IntVar(&last, "last", 0, "Only show the most recent N records")

	return cmd
}
