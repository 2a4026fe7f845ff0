package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/parking-monitor/internal/config"
	"github.com/oshokin/parking-monitor/internal/detector"
	"github.com/oshokin/parking-monitor/internal/domain/parking"
	"github.com/oshokin/parking-monitor/internal/logger"
	"github.com/oshokin/parking-monitor/internal/metrics"
	"github.com/oshokin/parking-monitor/internal/service/status"
	"github.com/oshokin/parking-monitor/internal/source"
)

// FrameResult is what the producer hands to the consumer for one frame.
type FrameResult struct {
	// Index is the frame position in the feed.
	Index int
	// Name identifies the frame in logs.
	Name string
	// Detections are the tracked vehicles of the frame.
	Detections parking.Detections
	// Err is set when the frame could not be read or detected; the frame is skipped.
	Err error
}

// Summary describes a finished run.
type Summary struct {
	// RunID identifies the run in logs, report headers and the state file.
	RunID string `json:"run_id"`
	// Frames is the number of frames consumed, skipped ones included.
	Frames int `json:"frames"`
	// Skipped is the number of frames without a table update.
	Skipped int `json:"skipped"`
	// Duration is the logical time covered by the feed.
	Duration time.Duration `json:"duration"`
	// Occupied is the final number of parked vehicles.
	Occupied int `json:"occupied"`
	// Capacity is the configured number of spaces.
	Capacity int `json:"capacity"`
	// Rate is the final occupancy percentage.
	Rate float64 `json:"occupancy_rate"`
	// Expired is the number of tracks evicted during the run.
	Expired uint64 `json:"expired"`
	// FinalReport is the outcome of the closing status report.
	FinalReport string `json:"final_report"`
}

// pipelineConfig carries the collaborators of a pipeline.
type pipelineConfig struct {
	feed     source.Feed
	tracker  Tracker
	reporter *status.Reporter
	metrics  *metrics.Metrics
	fps      float64
	settings *config.Config
}

// pipeline owns the tracking state of one run.
type pipeline struct {
	feed     source.Feed
	tracker  Tracker
	reporter *status.Reporter
	metrics  *metrics.Metrics

	table *parking.Table
	clock *parking.Clock

	capacity    int
	width       int
	height      int
	queueSize   int
	logInterval time.Duration

	// Consumer-owned counters.
	frames  int
	skipped int
	lastLog time.Duration
	last    time.Duration
}

// newPipeline builds a pipeline from validated settings.
func newPipeline(pc pipelineConfig) *pipeline {
	cfg := pc.settings

	thresholds := parking.Thresholds{
		StationaryDistance: cfg.Tracking.StationaryDistance,
		ParkedTime:         cfg.Tracking.ParkedTime,
		AllowUnparking:     cfg.Tracking.AllowUnparking,
	}

	return &pipeline{
		feed:        pc.feed,
		tracker:     pc.tracker,
		reporter:    pc.reporter,
		metrics:     pc.metrics,
		table:       parking.NewTable(thresholds, cfg.Tracking.ExpiryWindow),
		clock:       parking.NewClock(pc.fps),
		capacity:    cfg.Parking.Capacity,
		width:       cfg.Frame.Width,
		height:      cfg.Frame.Height,
		queueSize:   cfg.Tracking.QueueSize,
		logInterval: cfg.Log.Interval,
	}
}

// run pumps the feed to completion, then issues the final report.
// The returned summary is never nil.
func (p *pipeline) run(ctx context.Context) (*Summary, error) {
	results := make(chan FrameResult, p.queueSize)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.produce(gctx, results)
	})

	g.Go(func() error {
		defer p.reporter.Close()

		p.consume(gctx, results)

		return nil
	})

	// The worker outlives shutdown so an in-flight report finishes within the
	// client timeout. It stops when the consumer closes the reporter.
	g.Go(func() error {
		return p.reporter.Run(context.WithoutCancel(gctx))
	})

	err := g.Wait()

	snap := p.snapshot()

	// Shutdown must not cancel the closing report; the client timeout bounds it.
	final := p.reporter.Report(context.WithoutCancel(ctx), snap)

	return &Summary{
		Frames:      p.frames,
		Skipped:     p.skipped,
		Duration:    p.clock.Now(),
		Occupied:    snap.Occupied,
		Capacity:    snap.Capacity,
		Rate:        snap.OccupancyRate(),
		Expired:     p.table.Expired(),
		FinalReport: final.Outcome(),
	}, err
}

// produce reads and detects frames until the feed ends or ctx is canceled.
// Unreadable frames and detector failures travel as skipped frames so the
// consumer still advances the clock for them.
func (p *pipeline) produce(ctx context.Context, out chan<- FrameResult) error {
	defer close(out)

	for {
		frame, err := p.feed.Next(ctx)

		var result FrameResult

		switch {
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, source.ErrCorruptFrame):
			result = FrameResult{Index: frame.Index, Name: frame.Name, Err: err}
		case err != nil:
			return fmt.Errorf("read frame: %w", err)
		default:
			result = p.detect(ctx, frame)
		}

		select {
		case out <- result:
		case <-ctx.Done():
			return nil
		}
	}
}

// detect turns a frame into detections.
func (p *pipeline) detect(ctx context.Context, frame source.Frame) FrameResult {
	result := FrameResult{
		Index: frame.Index,
		Name:  frame.Name,
	}

	if frame.Replayed() {
		result.Detections = parking.DetectionsFromList(frame.Detections)

		return result
	}

	if p.tracker == nil {
		result.Err = ErrNoDetector

		return result
	}

	boxes, err := p.tracker.Track(ctx, detector.Resize(frame.Image, p.width, p.height))
	if err != nil {
		result.Err = err

		return result
	}

	result.Detections = parking.DetectionsFromList(detector.Tracked(boxes))

	return result
}

// consume applies results in feed order. It is the only writer of the table.
func (p *pipeline) consume(ctx context.Context, in <-chan FrameResult) {
	for result := range in {
		p.apply(ctx, result)
	}
}

// apply processes one frame: update, expire, maybe report, log, advance.
func (p *pipeline) apply(ctx context.Context, result FrameResult) {
	now := p.clock.Now()

	if result.Err != nil {
		p.skipped++
		p.metrics.ObserveSkipped()

		logger.WarnKV(ctx, "Skipping frame",
			"frame", result.Name,
			"index", result.Index,
			"error", result.Err,
		)
	} else {
		p.table.Update(now, result.Detections, p.clock.Step())
	}

	expired := p.table.Expire(now)
	snap := p.table.Snapshot(now, p.capacity)

	p.reporter.MaybeReport(ctx, now, snap)
	p.metrics.ObserveFrame(snap, expired)

	if now-p.lastLog >= p.logInterval {
		p.lastLog = now

		logger.InfoKV(ctx, "Occupancy",
			"elapsed", now.String(),
			"parked", snap.Occupied,
			"capacity", snap.Capacity,
			"live_tracks", snap.LiveTracks,
		)
	}

	p.frames++
	p.last = now
	p.clock.Advance()
}

// snapshot returns the occupancy at the last consumed frame.
func (p *pipeline) snapshot() parking.Snapshot {
	return p.table.Snapshot(p.last, p.capacity)
}
