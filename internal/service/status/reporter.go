package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/parking-monitor/internal/domain/parking"
	"github.com/oshokin/parking-monitor/internal/logger"
)

// Sender delivers one snapshot to the outside world.
type Sender interface {
	Send(ctx context.Context, snap parking.Snapshot) (*Ack, error)
}

// Recorder persists the outcome of report attempts.
type Recorder interface {
	Save(ctx context.Context, record *parking.ReportRecord) error
}

// Outcomes attached to results, metrics and persisted records.
const (
	OutcomeSuccess     = "success"
	OutcomeUnreachable = "unreachable"
	OutcomeTimeout     = "timeout"
	OutcomeCanceled    = "canceled"
	OutcomeHTTPError   = "http_error"
	OutcomeDisabled    = "disabled"
	OutcomeError       = "error"
)

// ErrDisabled is the result error when no endpoint is configured.
var ErrDisabled = errors.New("status reporting disabled")

// Result is the outcome of one report attempt.
type Result struct {
	// Snapshot is the reported occupancy.
	Snapshot parking.Snapshot
	// Ack is the endpoint acknowledgement, nil on failure.
	Ack *Ack
	// Err is nil on success.
	Err error
	// Duration is the wall-clock time the attempt took.
	Duration time.Duration
}

// Outcome classifies the result.
func (r Result) Outcome() string {
	switch {
	case r.Err == nil:
		return OutcomeSuccess
	case errors.Is(r.Err, ErrDisabled):
		return OutcomeDisabled
	case errors.Is(r.Err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(r.Err, ErrCanceled):
		return OutcomeCanceled
	case errors.Is(r.Err, ErrUnreachable):
		return OutcomeUnreachable
	case errors.Is(r.Err, ErrUnexpectedStatus):
		return OutcomeHTTPError
	default:
		return OutcomeError
	}
}

// Reporter schedules status reports on the feed's logical clock.
//
// MaybeReport is called by the goroutine that owns the track table; Run is the
// worker that performs the network calls. At most one snapshot waits for the
// worker: a newer due snapshot replaces an undelivered older one.
type Reporter struct {
	// sender performs the network call, nil disables reporting.
	sender Sender
	// interval is the logical time between reports.
	interval time.Duration
	// lastReport is the logical time of the last attempted report.
	lastReport time.Duration
	// pending hands due snapshots to the worker.
	pending chan parking.Snapshot
	// recorder persists outcomes when set.
	recorder Recorder
	// runID tags persisted records.
	runID string
	// observers are notified of every result.
	observers []func(Result)
	// closeOnce guards closing pending.
	closeOnce sync.Once
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithRecorder persists every attempt through rec.
func WithRecorder(rec Recorder) ReporterOption {
	return func(r *Reporter) {
		r.recorder = rec
	}
}

// WithObserver registers a callback invoked after every attempt.
func WithObserver(fn func(Result)) ReporterOption {
	return func(r *Reporter) {
		if fn != nil {
			r.observers = append(r.observers, fn)
		}
	}
}

// WithReportRunID tags persisted records with the run identifier.
func WithReportRunID(runID string) ReporterOption {
	return func(r *Reporter) {
		r.runID = runID
	}
}

// NewReporter creates a reporter firing every interval of logical time.
// A nil sender yields a reporter whose attempts end with ErrDisabled.
func NewReporter(sender Sender, interval time.Duration, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		sender:   sender,
		interval: interval,
		pending:  make(chan parking.Snapshot, 1),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Due reports whether a report should be sent at logical time now.
func (r *Reporter) Due(now time.Duration) bool {
	return now-r.lastReport >= r.interval
}

// LastReport returns the logical time of the last attempted report.
func (r *Reporter) LastReport() time.Duration {
	return r.lastReport
}

// MaybeReport queues snap for delivery when the interval has elapsed and
// returns whether it did. The schedule moves forward on every queued report,
// whatever its eventual outcome.
func (r *Reporter) MaybeReport(ctx context.Context, now time.Duration, snap parking.Snapshot) bool {
	if !r.Due(now) {
		return false
	}

	r.lastReport = now

	select {
	case r.pending <- snap:
		return true
	default:
	}

	select {
	case stale := <-r.pending:
		logger.WarnKV(ctx, "Previous status report still in flight, replacing queued snapshot",
			"queued_at", stale.At.String(),
			"replaced_by", snap.At.String(),
		)
	default:
	}

	select {
	case r.pending <- snap:
	default:
	}

	return true
}

// Run delivers queued snapshots until Close is called and the queue is empty,
// or ctx is canceled. Each delivery uses ctx, so canceling it also aborts the
// report in flight.
func (r *Reporter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-r.pending:
			if !ok {
				return nil
			}

			r.Report(ctx, snap)
		}
	}
}

// Close stops accepting snapshots. Run returns after delivering what is queued.
// MaybeReport must not be called after Close.
func (r *Reporter) Close() {
	r.closeOnce.Do(func() {
		close(r.pending)
	})
}

// Report performs one synchronous attempt, logs and records the outcome.
func (r *Reporter) Report(ctx context.Context, snap parking.Snapshot) Result {
	result := Result{Snapshot: snap}

	if r.sender == nil {
		result.Err = ErrDisabled

		logger.DebugKV(ctx, "Status reporting disabled", "occupied", snap.Occupied, "capacity", snap.Capacity)
		r.notify(result)

		return result
	}

	start := time.Now()
	result.Ack, result.Err = r.sender.Send(ctx, snap)
	result.Duration = time.Since(start)

	if result.Err != nil {
		logger.ErrorKV(ctx, "Status report failed",
			"outcome", result.Outcome(),
			"occupied", snap.Occupied,
			"capacity", snap.Capacity,
			"error", result.Err,
		)
	} else {
		logger.InfoKV(ctx, "Status report delivered",
			"occupied", snap.Occupied,
			"capacity", snap.Capacity,
			"occupancy_rate", result.Ack.Rate(),
			"status", result.Ack.StatusText(),
		)
	}

	r.record(ctx, start, result)
	r.notify(result)

	return result
}

// record persists the attempt when a recorder is configured.
func (r *Reporter) record(ctx context.Context, sentAt time.Time, result Result) {
	if r.recorder == nil {
		return
	}

	rec := &parking.ReportRecord{
		RunID:       r.runID,
		SentAt:      sentAt.UTC(),
		LogicalTime: result.Snapshot.At,
		Occupied:    result.Snapshot.Occupied,
		Capacity:    result.Snapshot.Capacity,
		Outcome:     result.Outcome(),
	}

	if result.Err != nil {
		rec.Error = result.Err.Error()
	}

	if err := r.recorder.Save(ctx, rec); err != nil {
		logger.WarnKV(ctx, "Failed to persist report outcome", "error", err)
	}
}

// notify calls every observer with result.
func (r *Reporter) notify(result Result) {
	for _, fn := range r.observers {
		fn(result)
	}
}
