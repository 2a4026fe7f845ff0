//go:build gocv

package source

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"gocv.io/x/gocv"
)

// Video feeds decoded frames of a video file or stream through OpenCV.
type Video struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	name    string
	next    int
	fps     float64
}

// OpenVideo opens a video file, device or stream URL.
func OpenVideo(path string) (Feed, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}

	if !capture.IsOpened() {
		_ = capture.Close()

		return nil, fmt.Errorf("open video %s: capture not opened", path)
	}

	return &Video{
		capture: capture,
		mat:     gocv.NewMat(),
		name:    filepath.Base(path),
		fps:     capture.Get(gocv.VideoCaptureFPS),
	}, nil
}

// Next grabs and converts the next frame.
func (v *Video) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	if ok := v.capture.Read(&v.mat); !ok || v.mat.Empty() {
		return Frame{}, io.EOF
	}

	index := v.next
	v.next++

	img, err := v.mat.ToImage()
	if err != nil {
		return Frame{Index: index}, fmt.Errorf("%w: convert frame %d: %w", ErrCorruptFrame, index, err)
	}

	return Frame{
		Index: index,
		Name:  fmt.Sprintf("%s#%d", v.name, index),
		Image: img,
	}, nil
}

// FPS returns the container frame rate, 0 when the container does not say.
func (v *Video) FPS() float64 {
	if v.fps < 0 {
		return 0
	}

	return v.fps
}

// Close releases the capture device and the frame buffer.
func (v *Video) Close() error {
	if err := v.mat.Close(); err != nil {
		_ = v.capture.Close()

		return fmt.Errorf("release frame buffer: %w", err)
	}

	return v.capture.Close()
}
