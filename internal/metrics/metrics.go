package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/parking-monitor/internal/domain/parking"
	"github.com/oshokin/parking-monitor/internal/logger"
)

const (
	namespace         = "parking"
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Metrics holds the monitor's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	frames         prometheus.Counter
	skipped        prometheus.Counter
	expired        prometheus.Counter
	liveTracks     prometheus.Gauge
	occupied       prometheus.Gauge
	capacity       prometheus.Gauge
	reports        *prometheus.CounterVec
	reportDuration prometheus.Histogram
}

// New creates the collectors and registers them in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames applied to the track table.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Frames whose detection failed; the clock still advanced.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_expired_total",
			Help:      "Tracks evicted after leaving the view.",
		}),
		liveTracks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracks_live",
			Help:      "Tracks currently held in the table.",
		}),
		occupied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "occupied",
			Help:      "Vehicles currently classified as parked.",
		}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capacity",
			Help:      "Configured number of parking spaces.",
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Status report attempts by outcome.",
		}, []string{"outcome"}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Wall-clock duration of status report attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.frames,
		m.skipped,
		m.expired,
		m.liveTracks,
		m.occupied,
		m.capacity,
		m.reports,
		m.reportDuration,
	)

	return m
}

// ObserveFrame records one applied frame and the occupancy after it.
func (m *Metrics) ObserveFrame(snap parking.Snapshot, expired int) {
	if m == nil {
		return
	}

	m.frames.Inc()
	m.expired.Add(float64(expired))
	m.liveTracks.Set(float64(snap.LiveTracks))
	m.occupied.Set(float64(snap.Occupied))
	m.capacity.Set(float64(snap.Capacity))
}

// ObserveSkipped records a frame whose detection failed.
func (m *Metrics) ObserveSkipped() {
	if m == nil {
		return
	}

	m.skipped.Inc()
}

// ObserveReport records one report attempt.
func (m *Metrics) ObserveReport(outcome string, took time.Duration) {
	if m == nil {
		return
	}

	m.reports.WithLabelValues(outcome).Inc()

	if took > 0 {
		m.reportDuration.Observe(took.Seconds())
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on address until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return m.ServeListener(ctx, lis)
}

// ServeListener is Serve on an already open listener.
func (m *Metrics) ServeListener(ctx context.Context, lis net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.InfoKV(ctx, "Metrics endpoint listening", "listen_address", lis.Addr().String())

	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "Metrics endpoint shutdown failed", "error", err)
		}
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	<-done
	logger.Info(ctx, "Metrics endpoint stopped")

	return nil
}
