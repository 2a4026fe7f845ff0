package parking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestNewClock checks step derivation from a frame rate and the fallback step.
func TestNewClock(t *testing.T) {
	t.Parallel()

	require.Equal(t, 40*time.Millisecond, NewClock(25).Step())
	require.Equal(t, DefaultFrameStep, NewClock(0).Step())
	require.Equal(t, DefaultFrameStep, NewClock(-1).Step())
	require.Equal(t, DefaultFrameStep, NewClockWithStep(0).Step())
}

// TestClock_Advance verifies that time starts at zero and grows by one step per frame.
func TestClock_Advance(t *testing.T) {
	t.Parallel()

	c := NewClockWithStep(200 * time.Millisecond)
	require.Zero(t, c.Now())
	require.Zero(t, c.Frame())

	for range 5 {
		c.Advance()
	}

	require.Equal(t, time.Second, c.Now())
	require.Equal(t, uint64(5), c.Frame())
}
