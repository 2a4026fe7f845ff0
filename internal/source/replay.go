package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/oshokin/parking-monitor/internal/domain/parking"
)

const maxReplayLine = 1 << 20

// replayDetection is one detection of a replay line.
type replayDetection struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// replayLine is one frame of a replay file.
type replayLine struct {
	Detections []replayDetection `json:"detections"`
}

// Replay feeds detections recorded as JSON lines, one frame per line:
//
//	{"detections":[{"id":1,"x":10,"y":20}]}
//
// Blank lines are skipped.
type Replay struct {
	file    io.Closer
	scanner *bufio.Scanner
	name    string
	next    int
	line    int
	fps     float64
}

// OpenReplay opens a replay file.
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}

	r := NewReplay(f)
	r.file = f
	r.name = filepath.Base(path)

	return r, nil
}

// NewReplay reads replay lines from rd.
func NewReplay(rd io.Reader) *Replay {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)

	return &Replay{
		scanner: scanner,
		name:    "replay",
	}
}

// WithFPS sets the frame rate reported by FPS.
func (r *Replay) WithFPS(fps float64) *Replay {
	r.fps = fps

	return r
}

// Next parses the next non-blank line.
func (r *Replay) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return Frame{}, fmt.Errorf("read replay: %w", err)
			}

			return Frame{}, io.EOF
		}

		r.line++

		raw := bytes.TrimSpace(r.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		index := r.next
		r.next++

		var line replayLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return Frame{Index: index}, fmt.Errorf("%w: decode replay line %d: %w", ErrCorruptFrame, r.line, err)
		}

		detections := make([]parking.Detection, 0, len(line.Detections))
		for _, d := range line.Detections {
			detections = append(detections, parking.Detection{
				ID:     parking.TrackID(d.ID),
				Center: r2.Vec{X: d.X, Y: d.Y},
			})
		}

		return Frame{
			Index:      index,
			Name:       fmt.Sprintf("%s:%d", r.name, r.line),
			Detections: detections,
		}, nil
	}
}

// FPS returns the configured rate, 0 by default.
func (r *Replay) FPS() float64 {
	return r.fps
}

// Close closes the underlying file when the replay owns one.
func (r *Replay) Close() error {
	if r.file == nil {
		return nil
	}

	return r.file.Close()
}
