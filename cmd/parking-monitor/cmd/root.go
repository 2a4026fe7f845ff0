package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/parking-monitor/internal/config"
	"github.com/oshokin/parking-monitor/internal/logger"
	"github.com/oshokin/parking-monitor/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command of the parking monitor.
	rootCmd = &cobra.Command{
		Use:   version.Name,
		Short: "Count parked vehicles on a camera feed and report lot occupancy.",
		Long: `Tracks vehicles reported by an external detector frame by frame, decides which
of them are parked from how long they stay in place, and periodically reports
the occupied count to a status endpoint.

Settings come from a YAML file, an optional .env file and PARKING_* environment
variables, in increasing order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if logLevel == "" {
				return nil
			}

			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
	}
)

// Execute runs the parking-monitor CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()

	logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&logLevel, "log-level", "l", "", "log level: debug, info, warn, error")
}
