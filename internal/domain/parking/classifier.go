package parking

import "time"

const (
	// DefaultStationaryDistance is the movement, in frame units, below which
	// an object counts as stationary for a frame.
	DefaultStationaryDistance = 80.0
	// DefaultParkedTime is the dwell time at which an object counts as parked.
	DefaultParkedTime = 5 * time.Second
	// DefaultExpiryWindow is how long a track may go unseen before eviction.
	DefaultExpiryWindow = 2 * time.Second
)

// Thresholds tune the dwell classifier.
type Thresholds struct {
	// StationaryDistance is the per-frame movement limit for a stationary frame.
	StationaryDistance float64
	// ParkedTime is the dwell time needed to become parked.
	ParkedTime time.Duration
	// AllowUnparking clears Parked when dwell decays below ParkedTime.
	// Off by default: a parked vehicle only leaves the count by expiring.
	AllowUnparking bool
}

// DefaultThresholds returns the thresholds used by the reference deployment.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StationaryDistance: DefaultStationaryDistance,
		ParkedTime:         DefaultParkedTime,
	}
}

// Classify updates a dwell time for one frame. A stationary frame adds dt,
// a moving frame subtracts it, and the result is clamped at zero.
// The second result reports whether the new dwell reaches ParkedTime.
func (th Thresholds) Classify(moved float64, dt, dwell time.Duration) (time.Duration, bool) {
	if moved < th.StationaryDistance {
		dwell += dt
	} else {
		dwell -= dt
	}

	if dwell < 0 {
		dwell = 0
	}

	return dwell, dwell >= th.ParkedTime
}
