package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/parking-monitor/internal/logger"
)

// Config holds every setting of the parking monitor.
type Config struct {
	// Parking describes the monitored lot.
	Parking Parking `yaml:"parking"`
	// Source selects the frame feed.
	Source Source `yaml:"source"`
	// Frame holds the detector input geometry and frame rate.
	Frame Frame `yaml:"frame"`
	// Detector configures the external detector service.
	Detector Detector `yaml:"detector"`
	// Tracking holds the occupancy engine thresholds.
	Tracking Tracking `yaml:"tracking"`
	// Report configures the outbound status reports.
	Report Report `yaml:"report"`
	// Log configures logging.
	Log Log `yaml:"log"`
	// MetricsAddress is the listen address of the Prometheus endpoint, empty to disable.
	MetricsAddress string `yaml:"metrics_addr"`
	// HealthAddress is the listen address of the gRPC health service, empty to disable.
	HealthAddress string `yaml:"health_addr"`
}

// Parking describes the monitored lot.
type Parking struct {
	// Name is a human readable label used in logs.
	Name string `yaml:"name"`
	// Capacity is the number of spaces in the lot.
	Capacity int `yaml:"capacity"`
}

// Source selects the frame feed.
type Source struct {
	// Path is a video file, a directory of images or a replay file.
	Path string `yaml:"path"`
	// Kind is one of SourceVideo, SourceImages, SourceReplay; empty means detect from Path.
	Kind string `yaml:"kind"`
}

// Frame holds the detector input geometry and frame rate.
type Frame struct {
	// Width is the width frames are resized to before detection.
	Width int `yaml:"width"`
	// Height is the height frames are resized to before detection.
	Height int `yaml:"height"`
	// FPS overrides the source frame rate when positive.
	FPS float64 `yaml:"fps"`
}

// Detector configures the external detector service.
type Detector struct {
	// Endpoint is the base URL of the detector service.
	Endpoint string `yaml:"endpoint"`
	// Timeout bounds a single detection call.
	Timeout time.Duration `yaml:"timeout"`
	// Confidence is the minimum detection confidence.
	Confidence float64 `yaml:"confidence"`
	// IOU is the non-maximum suppression overlap threshold.
	IOU float64 `yaml:"iou"`
	// Classes lists the detector class identifiers counted as vehicles.
	Classes []int `yaml:"classes"`
}

// Tracking holds the occupancy engine thresholds.
type Tracking struct {
	// StationaryDistance is the per-frame movement below which a vehicle is stationary.
	StationaryDistance float64 `yaml:"stationary_distance"`
	// ParkedTime is the dwell time after which a vehicle counts as parked.
	ParkedTime time.Duration `yaml:"parked_time"`
	// ExpiryWindow is how long a track may go unseen before eviction.
	ExpiryWindow time.Duration `yaml:"expiry_window"`
	// AllowUnparking clears the parked flag when dwell decays below ParkedTime.
	AllowUnparking bool `yaml:"allow_unparking"`
	// QueueSize bounds the frames buffered between detection and tracking.
	QueueSize int `yaml:"queue_size"`
}

// Report configures the outbound status reports.
type Report struct {
	// Endpoint receives status reports, empty disables reporting.
	Endpoint string `yaml:"endpoint"`
	// Interval is the logical time between reports.
	Interval time.Duration `yaml:"interval"`
	// Timeout bounds a single report request.
	Timeout time.Duration `yaml:"timeout"`
	// CapacityField is the payload key carrying capacity: total_spaces or capacity.
	CapacityField string `yaml:"capacity_field"`
	// StateFile persists the outcome of the last report, empty to disable.
	StateFile string `yaml:"state_file"`
}

// Log configures logging.
type Log struct {
	// Level is the minimum log level.
	Level string `yaml:"level"`
	// Interval is the logical time between status lines.
	Interval time.Duration `yaml:"interval"`
}

// Source kinds.
const (
	SourceVideo  = "video"
	SourceImages = "images"
	SourceReplay = "replay"
)

// Payload keys accepted for the capacity field.
const (
	CapacityFieldTotalSpaces = "total_spaces"
	CapacityFieldCapacity    = "capacity"
)

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "parking-monitor.yaml"
	// DefaultEnvFilename is the optional dotenv file read by Load.
	DefaultEnvFilename = ".env"

	// DefaultCapacity is the lot size of the reference deployment.
	DefaultCapacity = 20
	// DefaultFrameWidth is the detector input width.
	DefaultFrameWidth = 640
	// DefaultFrameHeight is the detector input height.
	DefaultFrameHeight = 480

	// DefaultDetectorTimeout bounds a detection call.
	DefaultDetectorTimeout = 15 * time.Second
	// DefaultConfidence is the minimum detection confidence.
	DefaultConfidence = 0.4
	// DefaultIOU is the default suppression overlap.
	DefaultIOU = 0.5

	// DefaultStationaryDistance is the stationary movement limit in pixels.
	DefaultStationaryDistance = 80.0
	// DefaultParkedTime is the dwell time needed to count as parked.
	DefaultParkedTime = 5 * time.Second
	// DefaultExpiryWindow is how long an unseen track is kept.
	DefaultExpiryWindow = 2 * time.Second
	// DefaultQueueSize is the number of frames buffered ahead of tracking.
	DefaultQueueSize = 8

	// DefaultReportInterval is the logical time between reports.
	DefaultReportInterval = 10 * time.Second
	// DefaultTimeout bounds a report request.
	DefaultTimeout = 5 * time.Second

	// DefaultLogInterval is the logical time between status lines.
	DefaultLogInterval = 5 * time.Second

	// DefaultFilePermissions is used for files written by the monitor.
	DefaultFilePermissions = 0o600
)

// Environment variables that override file settings.
const (
	EnvReportEndpoint   = "PARKING_REPORT_ENDPOINT"
	EnvCapacity         = "PARKING_CAPACITY"
	EnvDetectorEndpoint = "PARKING_DETECTOR_ENDPOINT"
	EnvLogLevel         = "PARKING_LOG_LEVEL"
	EnvMetricsAddress   = "PARKING_METRICS_ADDR"
	EnvHealthAddress    = "PARKING_HEALTH_ADDR"
)

//nolint:gochecknoglobals // Read-only default list.
var defaultVehicleClasses = []int{2, 5, 7}

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// ErrInvalidCapacity is returned when the lot capacity is not positive.
	ErrInvalidCapacity = errors.New("parking capacity must be positive")
	// ErrInvalidFrameSize is returned for negative frame dimensions.
	ErrInvalidFrameSize = errors.New("frame size must be positive")
	// ErrInvalidThreshold is returned for negative tracking thresholds.
	ErrInvalidThreshold = errors.New("tracking thresholds must be positive")
	// ErrInvalidCapacityField is returned for an unknown payload key.
	ErrInvalidCapacityField = errors.New("capacity field must be total_spaces or capacity")
	// ErrInvalidSourceKind is returned for an unknown source kind.
	ErrInvalidSourceKind = errors.New("source kind must be video, images or replay")
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Parking: Parking{Capacity: DefaultCapacity},
	}

	//nolint:errcheck // Defaults always validate.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from path, applies environment overrides and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = loadDotEnv(DefaultEnvFilename); err != nil {
		return nil, err
	}

	if err = ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOptional is Load, except that a missing file yields the defaults with
// environment overrides applied.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}

	cfg = &Config{Parking: Parking{Capacity: DefaultCapacity}}

	if err = loadDotEnv(DefaultEnvFilename); err != nil {
		return nil, err
	}

	if err = ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// loadDotEnv exports variables from a dotenv file without overriding the environment.
// A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("load %s: %w", path, err)
}

// ApplyEnv overrides settings from PARKING_* environment variables.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if v, ok := os.LookupEnv(EnvReportEndpoint); ok {
		cfg.Report.Endpoint = v
	}

	if v, ok := os.LookupEnv(EnvDetectorEndpoint); ok {
		cfg.Detector.Endpoint = v
	}

	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.Log.Level = v
	}

	if v, ok := os.LookupEnv(EnvMetricsAddress); ok {
		cfg.MetricsAddress = v
	}

	if v, ok := os.LookupEnv(EnvHealthAddress); ok {
		cfg.HealthAddress = v
	}

	if v, ok := os.LookupEnv(EnvCapacity); ok {
		capacity, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvCapacity, err)
		}

		cfg.Parking.Capacity = capacity
	}

	return nil
}

// Validate checks cfg, filling defaults for zero values.
//
//nolint:cyclop,funlen,gocognit // A flat list of checks reads better than helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Parking.Capacity <= 0 {
		return ErrInvalidCapacity
	}

	switch cfg.Source.Kind {
	case "", SourceVideo, SourceImages, SourceReplay:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSourceKind, cfg.Source.Kind)
	}

	if cfg.Frame.Width < 0 || cfg.Frame.Height < 0 || cfg.Frame.FPS < 0 {
		return ErrInvalidFrameSize
	}

	if cfg.Frame.Width == 0 {
		cfg.Frame.Width = DefaultFrameWidth
	}

	if cfg.Frame.Height == 0 {
		cfg.Frame.Height = DefaultFrameHeight
	}

	if err := validateURL("detector endpoint", cfg.Detector.Endpoint); err != nil {
		return err
	}

	cfg.Detector.Timeout = orDefault(cfg.Detector.Timeout, DefaultDetectorTimeout)

	if cfg.Detector.Confidence < 0 || cfg.Detector.Confidence > 1 ||
		cfg.Detector.IOU < 0 || cfg.Detector.IOU > 1 {
		return fmt.Errorf("%w: detector confidence and iou must be within [0, 1]", ErrInvalidThreshold)
	}

	if cfg.Detector.Confidence == 0 {
		cfg.Detector.Confidence = DefaultConfidence
	}

	if cfg.Detector.IOU == 0 {
		cfg.Detector.IOU = DefaultIOU
	}

	if len(cfg.Detector.Classes) == 0 {
		cfg.Detector.Classes = slices.Clone(defaultVehicleClasses)
	}

	if cfg.Tracking.StationaryDistance < 0 || cfg.Tracking.ParkedTime < 0 ||
		cfg.Tracking.ExpiryWindow < 0 || cfg.Tracking.QueueSize < 0 {
		return ErrInvalidThreshold
	}

	if cfg.Tracking.StationaryDistance == 0 {
		cfg.Tracking.StationaryDistance = DefaultStationaryDistance
	}

	cfg.Tracking.ParkedTime = orDefault(cfg.Tracking.ParkedTime, DefaultParkedTime)
	cfg.Tracking.ExpiryWindow = orDefault(cfg.Tracking.ExpiryWindow, DefaultExpiryWindow)

	if cfg.Tracking.QueueSize == 0 {
		cfg.Tracking.QueueSize = DefaultQueueSize
	}

	if err := validateURL("report endpoint", cfg.Report.Endpoint); err != nil {
		return err
	}

	if cfg.Report.Interval < 0 || cfg.Report.Timeout < 0 || cfg.Log.Interval < 0 {
		return ErrInvalidThreshold
	}

	cfg.Report.Interval = orDefault(cfg.Report.Interval, DefaultReportInterval)
	cfg.Report.Timeout = orDefault(cfg.Report.Timeout, DefaultTimeout)

	switch cfg.Report.CapacityField {
	case "":
		cfg.Report.CapacityField = CapacityFieldTotalSpaces
	case CapacityFieldTotalSpaces, CapacityFieldCapacity:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCapacityField, cfg.Report.CapacityField)
	}

	if _, ok := logger.ParseLogLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	cfg.Log.Interval = orDefault(cfg.Log.Interval, DefaultLogInterval)

	for _, addr := range []string{cfg.MetricsAddress, cfg.HealthAddress} {
		if addr == "" {
			continue
		}

		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
	}

	return nil
}

// validateURL accepts an empty value or an absolute http(s) URL.
func validateURL(name, raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s: unsupported scheme %q", name, u.Scheme)
	}

	return nil
}

// orDefault replaces a zero duration with def.
func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}

	return d
}
