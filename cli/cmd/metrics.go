package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Dump the Prometheus text-format exposition of every registered metric",
	RunE:  runMetrics,
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	if err := registry.WriteTo(os.Stdout); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
