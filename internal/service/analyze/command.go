package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"go.uber.org/zap/zapcore"

	"github.com/oshokin/parking-monitor/internal/config"
	"github.com/oshokin/parking-monitor/internal/detector"
	"github.com/oshokin/parking-monitor/internal/domain/parking"
	"github.com/oshokin/parking-monitor/internal/logger"
	"github.com/oshokin/parking-monitor/internal/source"
)

// Options controls a single-image analysis.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file; a missing file means defaults.
	ConfigPath string
	// ImagePath is the picture to analyze.
	ImagePath string
	// DetectorEndpoint overrides the configured detector.
	DetectorEndpoint string
	// Capacity overrides the configured lot size when positive.
	Capacity int
	// Output receives the JSON result, os.Stdout when nil.
	Output io.Writer
}

// Detector runs plain detection on one picture.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]detector.Box, error)
}

// Result describes the lot as seen on one picture.
type Result struct {
	// Count is the number of vehicles found.
	Count int `json:"count"`
	// IsFull reports whether every space is taken.
	IsFull bool `json:"is_full"`
	// Available is the number of free spaces.
	Available int `json:"available"`
	// TotalSpaces is the lot capacity.
	TotalSpaces int `json:"total_spaces"`
	// OccupancyRate is the occupied share in percent, one decimal.
	OccupancyRate float64 `json:"occupancy_rate"`
	// Dimensions is the size of the input picture as WIDTHxHEIGHT.
	Dimensions string `json:"dimensions"`
	// Vehicles are the raw detections, in resized coordinates.
	Vehicles []detector.Box `json:"vehicles"`
}

var (
	// ErrNoImage indicates a missing image path.
	ErrNoImage = errors.New("no image to analyze")
	// ErrNoDetector indicates a missing detector endpoint.
	ErrNoDetector = errors.New("no detector endpoint configured")
)

// Run analyzes one picture and writes the result as JSON.
func Run(ctx context.Context, opts *Options) error {
	// Informational logs would interleave with the JSON on stdout.
	ctx = logger.ToContext(ctx, logger.Logger().
		Desugar().
		WithOptions(logger.WithLevel(zapcore.WarnLevel)).
		Sugar().
		Named("analyze"))

	if opts.ImagePath == "" {
		return ErrNoImage
	}

	cfg, err := config.LoadOptional(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if opts.DetectorEndpoint != "" {
		cfg.Detector.Endpoint = opts.DetectorEndpoint
	}

	if opts.Capacity > 0 {
		cfg.Parking.Capacity = opts.Capacity
	}

	if cfg.Detector.Endpoint == "" {
		return ErrNoDetector
	}

	client, err := detector.New(cfg.Detector.Endpoint,
		detector.WithCallTimeout(cfg.Detector.Timeout),
		detector.WithThresholds(cfg.Detector.Confidence, cfg.Detector.IOU),
		detector.WithClasses(cfg.Detector.Classes...),
	)
	if err != nil {
		return fmt.Errorf("create detector client: %w", err)
	}

	img, err := source.DecodeFile(opts.ImagePath)
	if err != nil {
		return err
	}

	result, err := Analyze(ctx, client, img, cfg.Parking.Capacity, cfg.Frame.Width, cfg.Frame.Height)
	if err != nil {
		return err
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	if err = encoder.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	return nil
}

// Analyze shrinks img to fit width x height when larger, detects once and
// derives the lot figures for capacity.
func Analyze(ctx context.Context, det Detector, img image.Image, capacity, width, height int) (*Result, error) {
	bounds := img.Bounds()

	boxes, err := det.Detect(ctx, detector.FitWithin(img, width, height))
	if err != nil {
		logger.WarnKV(ctx, "Detection failed", "error", err)

		return nil, err
	}

	if boxes == nil {
		boxes = []detector.Box{}
	}

	snap := parking.Snapshot{
		Occupied: len(boxes),
		Capacity: capacity,
	}

	return &Result{
		Count:         snap.Occupied,
		IsFull:        snap.IsFull(),
		Available:     snap.Available(),
		TotalSpaces:   capacity,
		OccupancyRate: math.Round(snap.OccupancyRate()*10) / 10,
		Dimensions:    fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
		Vehicles:      boxes,
	}, nil
}
