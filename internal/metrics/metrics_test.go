package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/parking-monitor/internal/domain/parking"
)

// TestMetrics_Observe verifies collectors follow frame and report observations.
func TestMetrics_Observe(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveFrame(parking.Snapshot{Occupied: 3, Capacity: 20, LiveTracks: 5}, 0)
	m.ObserveFrame(parking.Snapshot{Occupied: 2, Capacity: 20, LiveTracks: 4}, 1)
	m.ObserveSkipped()
	m.ObserveReport("success", 120*time.Millisecond)
	m.ObserveReport("unreachable", 0)
	m.ObserveReport("unreachable", 0)

	require.InDelta(t, 2, testutil.ToFloat64(m.frames), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.skipped), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.expired), 0)
	require.InDelta(t, 4, testutil.ToFloat64(m.liveTracks), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.occupied), 0)
	require.InDelta(t, 20, testutil.ToFloat64(m.capacity), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.reports.WithLabelValues("success")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.reports.WithLabelValues("unreachable")), 0)
	require.Equal(t, 1, testutil.CollectAndCount(m.reportDuration))
}

// TestMetrics_Nil ensures a nil collector set is a no-op.
func TestMetrics_Nil(t *testing.T) {
	t.Parallel()

	var m *Metrics

	require.NotPanics(t, func() {
		m.ObserveFrame(parking.Snapshot{Occupied: 1}, 1)
		m.ObserveSkipped()
		m.ObserveReport("success", time.Second)
	})
}

// TestMetrics_Handler exposes the collectors in text format.
func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveFrame(parking.Snapshot{Occupied: 7, Capacity: 20}, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "parking_occupied 7")
	require.Contains(t, rec.Body.String(), "parking_frames_total 1")
}

// TestMetrics_ServeListener serves until the context is canceled.
func TestMetrics_ServeListener(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- m.ServeListener(ctx, lis)
	}()

	resp, err := http.Get("http://" + lis.Addr().String() + "/metrics")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Contains(t, string(body), "parking_capacity")

	cancel()

	select {
	case err = <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
