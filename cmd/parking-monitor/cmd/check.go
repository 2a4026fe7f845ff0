package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/parking-monitor/internal/service/checker"
)

var (
	// checkLot overrides the configured lot name.
	checkLot string
	// checkWatch keeps polling instead of checking once.
	checkWatch bool
	// checkInterval is the polling interval of watch mode.
	checkInterval time.Duration

	// checkCmd probes a running monitor.
	checkCmd = &cobra.Command{
		Use:   "check [health-address]",
		Short: "Query the health of a running monitor.",
		Long: `Asks a running monitor over the gRPC health protocol whether it is still
processing frames. Exits with a non-zero status unless the lot is SERVING.
With --watch the status is polled and every change is logged.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &checker.Options{
				ConfigPath:   configPath,
				Lot:          checkLot,
				Watch:        checkWatch,
				PollInterval: checkInterval,
			}

			if len(args) > 0 {
				options.Address = args[0]
			}

			return checker.Run(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	checkCmd.Flags().StringVar(&checkLot, "lot", "", "lot name the monitor was started with")
	checkCmd.Flags().BoolVarP(&checkWatch, "watch", "w", false, "keep polling until interrupted")
	checkCmd.Flags().DurationVar(&checkInterval, "interval", checker.DefaultPollInterval, "polling interval in watch mode")

	rootCmd.AddCommand(checkCmd)
}
