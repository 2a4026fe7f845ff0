package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/parking-monitor/internal/api/grpc/health"
	"github.com/oshokin/parking-monitor/internal/config"
	"github.com/oshokin/parking-monitor/internal/logger"
)

// Options controls the health probe.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Address overrides the configured health address.
	Address string
	// Lot overrides the configured lot name.
	Lot string
	// Watch keeps polling until ctx is canceled instead of checking once.
	Watch bool
	// PollInterval defines the interval between checks in watch mode.
	PollInterval time.Duration
	// Timeout specifies the per-RPC timeout duration.
	Timeout time.Duration
}

// DefaultPollInterval defines the polling interval of watch mode.
const DefaultPollInterval = 5 * time.Second

var (
	// ErrNoHealthAddress indicates missing health configuration.
	ErrNoHealthAddress = errors.New("no health address configured")
	// ErrNotServing is returned by a single check when the monitor is not processing frames.
	ErrNotServing = errors.New("monitor is not serving")
)

// Run checks the monitor once, or polls it in watch mode.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "checker")

	cfg, err := config.LoadOptional(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	address, err := resolveDialAddress(cfg.HealthAddress, opts.Address)
	if err != nil {
		return err
	}

	lot := cfg.Parking.Name
	if opts.Lot != "" {
		lot = opts.Lot
	}

	if lot == "" {
		lot = "default"
	}

	timeout := cfg.Report.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	client, err := health.Dial(ctx, address, health.WithCallTimeout(timeout))
	if err != nil {
		return fmt.Errorf("dial monitor: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	service := health.ServicePrefix + lot

	if !opts.Watch {
		return checkOnce(ctx, client, service)
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	logger.InfoKV(ctx, "Watching monitor health", "address", address, "service", service, "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_SERVICE_UNKNOWN

	for {
		status, checkErr := client.Check(ctx, service)

		switch {
		case checkErr != nil && ctx.Err() == nil:
			logger.ErrorKV(ctx, "Health check failed", "error", checkErr)
		case checkErr == nil && status != last:
			logger.InfoKV(ctx, "Monitor health changed", "service", service, "status", status.String())
			last = status
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			return nil
		case <-ticker.C:
		}
	}
}

// checkOnce reports the current status and fails unless the lot is SERVING.
func checkOnce(ctx context.Context, client *health.Client, service string) error {
	status, err := client.Check(ctx, service)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Monitor health", "service", service, "status", status.String())

	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotServing, status)
	}

	return nil
}

// resolveDialAddress picks the override or the configured listen address and
// turns a host-less listen address such as ":9090" into a loopback target.
func resolveDialAddress(configAddr, override string) (string, error) {
	address := configAddr
	if override != "" {
		address = override
	}

	if address == "" {
		return "", ErrNoHealthAddress
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", fmt.Errorf("invalid health address format %q: %w", address, err)
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port), nil
}
