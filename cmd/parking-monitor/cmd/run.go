package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/parking-monitor/internal/service/monitor"
)

var (
	// sourceKind forces the kind of the frame source.
	sourceKind string
	// reportEndpoint overrides the configured status endpoint.
	reportEndpoint string

	// runCmd runs the occupancy pipeline over a frame source.
	runCmd = &cobra.Command{
		Use:   "run [source]",
		Short: "Track vehicles on a video, image directory or replay file.",
		Long: `Runs the occupancy pipeline until the source is exhausted or the process is
interrupted, then sends a final status report.

The source can be given as argument to override the configuration: a directory
is read as an image sequence, a .jsonl file as a detection replay and anything
else as a video (videos need a build with the gocv tag).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &monitor.Options{
				ConfigPath:     configPath,
				SourceKind:     sourceKind,
				ReportEndpoint: reportEndpoint,
				LogLevel:       logLevel,
			}

			if len(args) > 0 {
				options.SourcePath = args[0]
			}

			_, err := monitor.Run(ctx, options)

			return err
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	runCmd.Flags().StringVarP(&sourceKind, "kind", "k", "", "source kind: video, images or replay")
	runCmd.Flags().StringVarP(&reportEndpoint, "report-endpoint", "r", "", "status endpoint URL")

	rootCmd.AddCommand(runCmd)
}
