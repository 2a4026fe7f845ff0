package parking

import "time"

// Occupancy statuses reported alongside a snapshot.
const (
	StatusAvailable = "available"
	StatusFull      = "full"
)

// Snapshot is the occupancy of a feed at one logical instant.
type Snapshot struct {
	// At is the logical time the snapshot was taken.
	At time.Duration
	// Occupied is the number of parked tracks.
	Occupied int
	// Capacity is the configured number of spaces.
	Capacity int
	// LiveTracks is the number of tracks in the table, parked or not.
	LiveTracks int
}

// Available returns the number of free spaces, never negative.
func (s Snapshot) Available() int {
	return max(0, s.Capacity-s.Occupied)
}

// IsFull reports whether every space is taken.
func (s Snapshot) IsFull() bool {
	return s.Occupied >= s.Capacity
}

// Status returns StatusFull or StatusAvailable.
func (s Snapshot) Status() string {
	if s.IsFull() {
		return StatusFull
	}

	return StatusAvailable
}

// OccupancyRate returns the occupied share of capacity in percent.
// Occupancy above capacity is reported as 100.
func (s Snapshot) OccupancyRate() float64 {
	if s.Capacity <= 0 {
		return 0
	}

	return float64(min(s.Occupied, s.Capacity)) / float64(s.Capacity) * 100
}
