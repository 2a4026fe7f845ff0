package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/parking-monitor/internal/config"
	"github.com/oshokin/parking-monitor/internal/domain/parking"
)

// Frame is one unit of the feed.
type Frame struct {
	// Index is the zero-based position of the frame in the feed.
	Index int
	// Name identifies the frame for logs, e.g. the image file name.
	Name string
	// Image is the picture to run detection on; nil for replay frames.
	Image image.Image
	// Detections are pre-recorded detections; set only for replay frames.
	Detections []parking.Detection
}

// Replayed reports whether the frame already carries detections.
func (f Frame) Replayed() bool {
	return f.Image == nil
}

// Feed yields frames until io.EOF.
type Feed interface {
	// Next returns the next frame or io.EOF when the feed is exhausted.
	Next(ctx context.Context) (Frame, error)
	// FPS returns the native frame rate, 0 when unknown.
	FPS() float64
	// Close releases the feed.
	Close() error
}

var (
	// ErrUnknownKind is returned when a feed kind cannot be resolved.
	ErrUnknownKind = errors.New("unknown source kind")
	// ErrCorruptFrame marks a single unreadable frame; the feed can continue past it.
	ErrCorruptFrame = errors.New("corrupt frame")
	// ErrVideoUnsupported is returned when the binary is built without video support.
	ErrVideoUnsupported = errors.New("video sources require a build with the gocv tag")
)

// DetectKind resolves the feed kind for path: stream URLs such as rtsp://
// are video, directories are image sequences, .jsonl files are replays and
// any other file is treated as video.
func DetectKind(path string) (string, error) {
	if IsStreamURL(path) {
		return config.SourceVideo, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}

	switch {
	case info.IsDir():
		return config.SourceImages, nil
	case strings.EqualFold(filepath.Ext(path), ".jsonl"):
		return config.SourceReplay, nil
	default:
		return config.SourceVideo, nil
	}
}

// IsStreamURL reports whether path is a network address with a scheme and a
// host, e.g. rtsp://camera:554/live. Local paths never match.
func IsStreamURL(path string) bool {
	u, err := url.Parse(path)
	if err != nil {
		return false
	}

	return u.Scheme != "" && u.Host != ""
}

// Open opens the feed at path. An empty kind is resolved with DetectKind.
func Open(path, kind string) (Feed, error) {
	if kind == "" {
		var err error
		if kind, err = DetectKind(path); err != nil {
			return nil, err
		}
	}

	switch kind {
	case config.SourceImages:
		return OpenImages(path)
	case config.SourceReplay:
		return OpenReplay(path)
	case config.SourceVideo:
		return OpenVideo(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
