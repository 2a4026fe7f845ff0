package parking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestClassify covers stationary growth, moving decay, clamping and eligibility.
func TestClassify(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()

	cases := []struct {
		name     string
		moved    float64
		dt       time.Duration
		dwell    time.Duration
		want     time.Duration
		eligible bool
	}{
		{"stationary grows", 0, time.Second, 2 * time.Second, 3 * time.Second, false},
		{"just below distance is stationary", 79.9, time.Second, 0, time.Second, false},
		{"distance threshold is moving", 80, time.Second, 3 * time.Second, 2 * time.Second, false},
		{"moving decays to zero", 500, time.Second, 500 * time.Millisecond, 0, false},
		{"reaches threshold", 10, time.Second, 4 * time.Second, 5 * time.Second, true},
		{"moving above threshold stays eligible", 500, time.Second, 7 * time.Second, 6 * time.Second, true},
		{"negative step never goes below zero", 0, -time.Second, 0, 0, false},
	}

	for _, tc := range cases {
		got, eligible := th.Classify(tc.moved, tc.dt, tc.dwell)
		require.Equal(t, tc.want, got, tc.name)
		require.Equal(t, tc.eligible, eligible, tc.name)
	}
}
