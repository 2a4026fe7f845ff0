package parking

import "time"

// DefaultFrameStep is used when the source does not report a usable frame rate.
const DefaultFrameStep = 33 * time.Millisecond

// Clock advances logical time by a fixed step per frame.
// Time starts at zero on the first frame.
type Clock struct {
	// now is the logical time of the current frame.
	now time.Duration
	// step is the logical duration of one frame.
	step time.Duration
	// frame is the zero-based index of the current frame.
	frame uint64
}

// NewClock derives the per-frame step from a frame rate.
func NewClock(fps float64) *Clock {
	if fps <= 0 {
		return NewClockWithStep(DefaultFrameStep)
	}

	return NewClockWithStep(time.Duration(float64(time.Second) / fps))
}

// NewClockWithStep creates a clock with an explicit per-frame step.
func NewClockWithStep(step time.Duration) *Clock {
	if step <= 0 {
		step = DefaultFrameStep
	}

	return &Clock{
		step: step,
	}
}

// Now returns the logical time of the current frame.
func (c *Clock) Now() time.Duration {
	return c.now
}

// Step returns the logical duration of one frame.
func (c *Clock) Step() time.Duration {
	return c.step
}

// Frame returns the index of the current frame.
func (c *Clock) Frame() uint64 {
	return c.frame
}

// Advance moves to the next frame and returns its logical time.
func (c *Clock) Advance() time.Duration {
	c.now += c.step
	c.frame++

	return c.now
}
