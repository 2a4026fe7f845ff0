package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/parking-monitor/internal/service/analyze"
)

var (
	// detectorEndpoint overrides the configured detector.
	detectorEndpoint string
	// capacity overrides the configured lot size.
	capacity int

	// analyzeCmd counts vehicles on one picture.
	analyzeCmd = &cobra.Command{
		Use:   "analyze <image>",
		Short: "Count vehicles on a single picture and print the lot status as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return analyze.Run(ctx, &analyze.Options{
				ConfigPath:       configPath,
				ImagePath:        args[0],
				DetectorEndpoint: detectorEndpoint,
				Capacity:         capacity,
				Output:           cmd.OutOrStdout(),
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	analyzeCmd.Flags().StringVarP(&detectorEndpoint, "detector", "d", "", "detector service URL")
	analyzeCmd.Flags().IntVar(&capacity, "capacity", 0, "number of spaces in the lot")

	rootCmd.AddCommand(analyzeCmd)
}
