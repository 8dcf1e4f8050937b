// mmtc correlates spacecraft clock telemetry with ground time and keeps the
// resulting correlation history.
//
// Usage:
//
//	mmtc seed -c mmtc.yaml --sclk 0 --tdt 0 --rate 1
//	mmtc correlate -c mmtc.yaml
//	mmtc correlate -c mmtc.yaml --commit -o json
//	mmtc history -c mmtc.yaml
//	mmtc serve -c mmtc.yaml --metrics-addr :9090
//	mmtc feed -c mmtc.yaml --addr :7070
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
	outputFmt  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mmtc",
		Short: "Correlate spacecraft clock telemetry with ground time",
		Long: `mmtc selects telemetry samples that bracket an onboard time-keeping
event, derives the ground time of that event and computes the spacecraft
clock change rate against the correlation history.

Configuration is read from a YAML file; MMTC_* environment variables
override individual settings.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(correlateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(feedCmd())

	return rootCmd
}
