package monitor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/parking-monitor/internal/config"
	"github.com/oshokin/parking-monitor/internal/detector"
	"github.com/oshokin/parking-monitor/internal/domain/parking"
	"github.com/oshokin/parking-monitor/internal/logger"
	"github.com/oshokin/parking-monitor/internal/service/status"
	"github.com/oshokin/parking-monitor/internal/source"
)

// sliceFeed yields prepared frames and errors in order.
type sliceFeed struct {
	frames []source.Frame
	errs   []error
	next   int
	closed bool
}

// Next returns the next prepared frame or io.EOF.
func (f *sliceFeed) Next(ctx context.Context) (source.Frame, error) {
	if err := ctx.Err(); err != nil {
		return source.Frame{}, err
	}

	if f.next >= len(f.frames) {
		return source.Frame{}, io.EOF
	}

	i := f.next
	f.next++

	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}

	return f.frames[i], err
}

// FPS is fixed at one frame per second.
func (f *sliceFeed) FPS() float64 { return 1 }

// Close marks the feed closed.
func (f *sliceFeed) Close() error {
	f.closed = true

	return nil
}

// parkedFrames builds n replay frames with one stationary vehicle.
func parkedFrames(n int) []source.Frame {
	frames := make([]source.Frame, n)
	for i := range frames {
		frames[i] = source.Frame{
			Index:      i,
			Detections: []parking.Detection{{ID: 1, Center: parking.Position{X: 100, Y: 100}}},
		}
	}

	return frames
}

// fakeTracker answers every frame with one box and fails on selected calls.
type fakeTracker struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
	sizes  []image.Rectangle
}

// Track records the frame size and returns a stationary vehicle.
func (f *fakeTracker) Track(_ context.Context, frame image.Image) ([]detector.Box, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := f.calls
	f.calls++
	f.sizes = append(f.sizes, frame.Bounds())

	if f.failOn[call] {
		return nil, detector.ErrDetection
	}

	id := 9

	return []detector.Box{{TrackID: &id, ClassID: 2, BBox: [4]float64{10, 10, 30, 30}}}, nil
}

// recordingSender captures snapshots sent by the reporter.
type recordingSender struct {
	mu   sync.Mutex
	sent []parking.Snapshot
	err  error
}

// Send records snap.
func (r *recordingSender) Send(_ context.Context, snap parking.Snapshot) (*status.Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = append(r.sent, snap)
	if r.err != nil {
		return nil, r.err
	}

	return &status.Ack{StatusCode: 201}, nil
}

// snapshots returns a copy of the recorded snapshots.
func (r *recordingSender) snapshots() []parking.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]parking.Snapshot(nil), r.sent...)
}

// testPipeline wires a pipeline around feed with default settings at one frame per second.
func testPipeline(feed source.Feed, tracker Tracker, sender status.Sender) *pipeline {
	cfg := config.Default()

	return newPipeline(pipelineConfig{
		feed:     feed,
		tracker:  tracker,
		reporter: status.NewReporter(sender, cfg.Report.Interval),
		fps:      1,
		settings: cfg,
	})
}

// TestPipeline_ParksAndReports runs a stationary vehicle through report time and the final report.
func TestPipeline_ParksAndReports(t *testing.T) {
	t.Parallel()

	sender := new(recordingSender)
	feed := &sliceFeed{frames: parkedFrames(13)}
	p := testPipeline(feed, nil, sender)

	summary, err := p.run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 13, summary.Frames)
	require.Zero(t, summary.Skipped)
	require.Equal(t, 13*time.Second, summary.Duration)
	require.Equal(t, 1, summary.Occupied)
	require.Equal(t, config.DefaultCapacity, summary.Capacity)
	require.InDelta(t, 5.0, summary.Rate, 1e-9)
	require.Equal(t, status.OutcomeSuccess, summary.FinalReport)

	sent := sender.snapshots()
	require.Len(t, sent, 2)
	require.Equal(t, 10*time.Second, sent[0].At)
	require.Equal(t, 1, sent[0].Occupied)
	require.Equal(t, 12*time.Second, sent[1].At)
	require.Equal(t, 1, sent[1].Occupied)
}

// TestPipeline_ReportFailureDoesNotStopFrames keeps consuming frames when the endpoint is down.
func TestPipeline_ReportFailureDoesNotStopFrames(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{err: status.ErrUnreachable}
	p := testPipeline(&sliceFeed{frames: parkedFrames(25)}, nil, sender)

	summary, err := p.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 25, summary.Frames)
	require.Equal(t, 1, summary.Occupied)
	require.Equal(t, status.OutcomeUnreachable, summary.FinalReport)

	var times []time.Duration
	for _, snap := range sender.snapshots() {
		times = append(times, snap.At)
	}

	require.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 24 * time.Second}, times)
}

// TestPipeline_SkippedFramesAdvanceClock checks detector failures skip the update but not the time step.
func TestPipeline_SkippedFramesAdvanceClock(t *testing.T) {
	t.Parallel()

	frames := make([]source.Frame, 8)
	for i := range frames {
		frames[i] = source.Frame{Index: i, Image: image.NewRGBA(image.Rect(0, 0, 1280, 960))}
	}

	tracker := &fakeTracker{failOn: map[int]bool{2: true, 3: true}}
	p := testPipeline(&sliceFeed{frames: frames}, tracker, nil)

	summary, err := p.run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 8, summary.Frames)
	require.Equal(t, 2, summary.Skipped)
	require.Equal(t, 8*time.Second, summary.Duration)
	require.Equal(t, status.OutcomeDisabled, summary.FinalReport)

	// Seen at 0, 1 and 4..7. The gap stays inside the expiry window and dwell
	// grows by one frame step per sighting.
	track, ok := p.table.Get(9)
	require.True(t, ok)
	require.Equal(t, 7*time.Second, track.LastSeen)
	require.Equal(t, 5*time.Second, track.DwellTime)
	require.True(t, track.Parked)

	for _, size := range tracker.sizes {
		require.Equal(t, image.Rect(0, 0, config.DefaultFrameWidth, config.DefaultFrameHeight), size)
	}
}

// TestPipeline_CorruptFrameSkipped treats an unreadable frame as skipped.
func TestPipeline_CorruptFrameSkipped(t *testing.T) {
	t.Parallel()

	feed := &sliceFeed{
		frames: parkedFrames(3),
		errs:   []error{nil, source.ErrCorruptFrame},
	}
	p := testPipeline(feed, nil, nil)

	summary, err := p.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Frames)
	require.Equal(t, 1, summary.Skipped)
}

// TestPipeline_FeedErrorStopsRun returns fatal feed errors after the final report.
func TestPipeline_FeedErrorStopsRun(t *testing.T) {
	t.Parallel()

	sender := new(recordingSender)
	broken := errors.New("device unplugged")
	feed := &sliceFeed{
		frames: parkedFrames(3),
		errs:   []error{nil, nil, broken},
	}
	p := testPipeline(feed, nil, sender)

	summary, err := p.run(context.Background())
	require.ErrorIs(t, err, broken)
	require.Equal(t, 2, summary.Frames)
	require.Len(t, sender.snapshots(), 1)
}

// TestPipeline_Canceled stops pulling frames and still sends the final report.
func TestPipeline_Canceled(t *testing.T) {
	t.Parallel()

	sender := new(recordingSender)
	p := testPipeline(&sliceFeed{frames: parkedFrames(100)}, nil, sender)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := p.run(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.Frames)
	require.Len(t, sender.snapshots(), 1)
}

// TestFrameRate prefers the configured rate.
func TestFrameRate(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 30.0, frameRate(30, 25), 0)
	require.InDelta(t, 25.0, frameRate(0, 25), 0)
	require.Zero(t, frameRate(0, 0))
}

// heldFeed yields its frames and then blocks until ctx is canceled, like a live camera.
type heldFeed struct {
	sliceFeed
}

// Next returns the prepared frames, then waits for cancellation.
func (f *heldFeed) Next(ctx context.Context) (source.Frame, error) {
	if f.next < len(f.frames) {
		return f.sliceFeed.Next(ctx)
	}

	<-ctx.Done()

	return source.Frame{}, ctx.Err()
}

// slowSender takes delay to deliver a report unless its context ends first.
type slowSender struct {
	delay   time.Duration
	started chan struct{}
}

// Send signals the start of a delivery and waits for delay or ctx.
func (s *slowSender) Send(ctx context.Context, _ parking.Snapshot) (*status.Ack, error) {
	select {
	case s.started <- struct{}{}:
	default:
	}

	select {
	case <-time.After(s.delay):
		return &status.Ack{StatusCode: 201}, nil
	case <-ctx.Done():
		return nil, errors.Join(status.ErrCanceled, ctx.Err())
	}
}

// TestPipeline_ShutdownLetsInFlightReportFinish interrupts the run while the
// 10s report is being delivered; that report and the final one both succeed.
func TestPipeline_ShutdownLetsInFlightReportFinish(t *testing.T) {
	t.Parallel()

	sender := &slowSender{delay: 200 * time.Millisecond, started: make(chan struct{}, 1)}

	var (
		mu       sync.Mutex
		outcomes []string
	)

	cfg := config.Default()
	p := newPipeline(pipelineConfig{
		feed: &heldFeed{sliceFeed{frames: parkedFrames(11)}},
		reporter: status.NewReporter(sender, cfg.Report.Interval, status.WithObserver(func(res status.Result) {
			mu.Lock()
			defer mu.Unlock()

			outcomes = append(outcomes, res.Outcome())
		})),
		fps:      1,
		settings: cfg,
	})

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-sender.started
		cancel()
	}()

	summary, err := p.run(ctx)
	require.NoError(t, err)
	require.Equal(t, 11, summary.Frames)
	require.Equal(t, status.OutcomeSuccess, summary.FinalReport)

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, []string{status.OutcomeSuccess, status.OutcomeSuccess}, outcomes)
}

// syncBuffer is a bytes.Buffer safe for concurrent log writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write appends p.
func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// TestPipeline_PeriodicStatusLine logs occupancy every log interval of feed time.
func TestPipeline_PeriodicStatusLine(t *testing.T) {
	t.Parallel()

	out := new(syncBuffer)
	ctx := logger.ToContext(context.Background(), logger.NewWithWriter(out, zapcore.InfoLevel))

	p := testPipeline(&sliceFeed{frames: parkedFrames(11)}, nil, nil)

	_, err := p.run(ctx)
	require.NoError(t, err)

	var lines []string

	for _, line := range strings.Split(out.String(), "\n") {
		if strings.Contains(line, "Occupancy") {
			lines = append(lines, line)
		}
	}

	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"5s"`)
	require.Contains(t, lines[1], `"10s"`)

	for _, line := range lines {
		require.Contains(t, line, "elapsed")
		require.Contains(t, line, "parked")
		require.Contains(t, line, "capacity")
		require.Contains(t, line, "live_tracks")
	}
}
