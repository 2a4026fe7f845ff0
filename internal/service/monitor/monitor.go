package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/parking-monitor/internal/api/grpc/health"
	"github.com/oshokin/parking-monitor/internal/config"
	"github.com/oshokin/parking-monitor/internal/detector"
	"github.com/oshokin/parking-monitor/internal/logger"
	"github.com/oshokin/parking-monitor/internal/metrics"
	"github.com/oshokin/parking-monitor/internal/repository/state"
	"github.com/oshokin/parking-monitor/internal/service/status"
	"github.com/oshokin/parking-monitor/internal/source"
	"github.com/oshokin/parking-monitor/internal/version"
)

// Options controls a monitor run.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// SourcePath overrides the configured frame source.
	SourcePath string
	// SourceKind overrides the configured source kind.
	SourceKind string
	// ReportEndpoint overrides the configured status endpoint.
	ReportEndpoint string
	// LogLevel overrides the configured log level.
	LogLevel string
}

// Tracker runs detection with tracking on one frame.
type Tracker interface {
	Track(ctx context.Context, frame image.Image) ([]detector.Box, error)
}

const defaultLotName = "default"

var (
	// ErrNoSource indicates that neither the config nor the options name a source.
	ErrNoSource = errors.New("no frame source configured")
	// ErrNoDetector indicates a picture source without a detector endpoint.
	ErrNoDetector = errors.New("image and video sources need a detector endpoint")
)

// Run loads the configuration, applies the overrides and runs the pipeline
// until the feed ends or ctx is canceled. A missing configuration file means
// the defaults.
func Run(ctx context.Context, opts *Options) (*Summary, error) {
	cfg, err := config.LoadOptional(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if opts.SourcePath != "" {
		cfg.Source.Path = opts.SourcePath
	}

	if opts.SourceKind != "" {
		cfg.Source.Kind = opts.SourceKind
	}

	if opts.ReportEndpoint != "" {
		cfg.Report.Endpoint = opts.ReportEndpoint
	}

	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	if err = config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(cfg.Log.Level); ok {
		logger.SetLevel(level)
	}

	return RunWithConfig(ctx, cfg)
}

// RunWithConfig runs the pipeline with a validated configuration.
//
//nolint:funlen // Wiring reads best in one place.
func RunWithConfig(ctx context.Context, cfg *config.Config) (*Summary, error) {
	if cfg.Source.Path == "" {
		return nil, ErrNoSource
	}

	lot := cfg.Parking.Name
	if lot == "" {
		lot = defaultLotName
	}

	runID := uuid.NewString()
	ctx = logger.WithKV(logger.WithName(ctx, "monitor"), "run_id", runID, "lot", lot)

	kind := cfg.Source.Kind
	if kind == "" {
		var err error
		if kind, err = source.DetectKind(cfg.Source.Path); err != nil {
			return nil, err
		}
	}

	tracker, err := newTracker(cfg, kind)
	if err != nil {
		return nil, err
	}

	feed, err := source.Open(cfg.Source.Path, kind)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	defer func() {
		if closeErr := feed.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close source", "error", closeErr)
		}
	}()

	var (
		collectors *metrics.Metrics
		healthSrv  *health.Server
	)

	if cfg.MetricsAddress != "" {
		collectors = metrics.New()
	}

	if cfg.HealthAddress != "" {
		healthSrv = health.NewServer(lot)
	}

	reporter, err := newReporter(ctx, cfg, runID, collectors)
	if err != nil {
		return nil, err
	}

	p := newPipeline(pipelineConfig{
		feed:     feed,
		tracker:  tracker,
		reporter: reporter,
		metrics:  collectors,
		fps:      frameRate(cfg.Frame.FPS, feed.FPS()),
		settings: cfg,
	})

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	servers, serveCtx := errgroup.WithContext(serveCtx)

	if collectors != nil {
		servers.Go(func() error {
			return collectors.Serve(serveCtx, cfg.MetricsAddress)
		})
	}

	if healthSrv != nil {
		healthSrv.SetServing(true)
		servers.Go(func() error {
			return healthSrv.Serve(serveCtx, cfg.HealthAddress)
		})
	}

	logger.InfoKV(ctx, "Monitoring parking lot",
		"version", version.Short(),
		"source", cfg.Source.Path,
		"kind", kind,
		"capacity", cfg.Parking.Capacity,
		"frame_step", p.clock.Step().String(),
		"report_endpoint", cfg.Report.Endpoint,
	)

	summary, runErr := p.run(ctx)
	summary.RunID = runID

	if healthSrv != nil {
		healthSrv.SetServing(false)
	}

	stopServing()

	if err = servers.Wait(); err != nil {
		logger.ErrorKV(ctx, "Auxiliary server failed", "error", err)
	}

	logger.InfoKV(ctx, "Monitor finished",
		"frames", summary.Frames,
		"skipped", summary.Skipped,
		"elapsed", summary.Duration.String(),
		"parked", summary.Occupied,
		"capacity", summary.Capacity,
		"occupancy_rate", fmt.Sprintf("%.1f%%", summary.Rate),
		"final_report", summary.FinalReport,
	)

	return summary, runErr
}

// newTracker builds the detector client, or nil for replay feeds without one.
func newTracker(cfg *config.Config, kind string) (Tracker, error) {
	if cfg.Detector.Endpoint == "" {
		if kind == config.SourceReplay {
			return nil, nil //nolint:nilnil // Replays carry their own detections.
		}

		return nil, ErrNoDetector
	}

	client, err := detector.New(cfg.Detector.Endpoint,
		detector.WithCallTimeout(cfg.Detector.Timeout),
		detector.WithThresholds(cfg.Detector.Confidence, cfg.Detector.IOU),
		detector.WithClasses(cfg.Detector.Classes...),
	)
	if err != nil {
		return nil, fmt.Errorf("create detector client: %w", err)
	}

	return client, nil
}

// newReporter wires the status client, the state file and the metrics observer.
func newReporter(
	ctx context.Context,
	cfg *config.Config,
	runID string,
	collectors *metrics.Metrics,
) (*status.Reporter, error) {
	opts := []status.ReporterOption{
		status.WithReportRunID(runID),
		status.WithObserver(func(res status.Result) {
			collectors.ObserveReport(res.Outcome(), res.Duration)
		}),
	}

	if cfg.Report.StateFile != "" {
		repo := state.NewFileRepository(cfg.Report.StateFile)
		opts = append(opts, status.WithRecorder(repo))

		logger.InfoKV(ctx, "Recording report outcomes", "state_file", repo.Path())
	}

	if cfg.Report.Endpoint == "" {
		logger.Warn(ctx, "No report endpoint configured, status reports are disabled")

		return status.NewReporter(nil, cfg.Report.Interval, opts...), nil
	}

	client, err := status.NewClient(cfg.Report.Endpoint,
		status.WithCallTimeout(cfg.Report.Timeout),
		status.WithCapacityField(cfg.Report.CapacityField),
		status.WithRunID(runID),
	)
	if err != nil {
		return nil, fmt.Errorf("create status client: %w", err)
	}

	return status.NewReporter(client, cfg.Report.Interval, opts...), nil
}

// frameRate prefers the configured rate over the one reported by the source.
func frameRate(configured, native float64) float64 {
	if configured > 0 {
		return configured
	}

	return native
}
