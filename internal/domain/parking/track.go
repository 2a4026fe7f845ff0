package parking

import (
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// TrackID is the identifier assigned to an object by the upstream tracker.
type TrackID int

// Position is the center of a detection in frame coordinates.
type Position = r2.Vec

// Track is the state kept for one observed object.
type Track struct {
	// ID is the upstream tracker identifier.
	ID TrackID
	// Position is the last observed center.
	Position Position
	// DwellTime is the accumulated stationary time, never negative.
	DwellTime time.Duration
	// FirstSeen is the logical time the track was created.
	FirstSeen time.Duration
	// LastSeen is the logical time of the most recent observation.
	LastSeen time.Duration
	// Parked is set once DwellTime reaches the parked threshold.
	Parked bool
}

// newTrack creates a track from its first sighting.
func newTrack(id TrackID, pos Position, now time.Duration) *Track {
	return &Track{
		ID:        id,
		Position:  pos,
		FirstSeen: now,
		LastSeen:  now,
	}
}

// observe applies a repeat sighting. Parked is only ever cleared when the
// thresholds allow un-parking.
func (t *Track) observe(now time.Duration, pos Position, dt time.Duration, th Thresholds) {
	moved := Distance(t.Position, pos)

	dwell, eligible := th.Classify(moved, dt, t.DwellTime)
	t.DwellTime = dwell

	switch {
	case eligible:
		t.Parked = true
	case th.AllowUnparking:
		t.Parked = false
	}

	t.Position = pos
	t.LastSeen = now
}

// Unseen returns how long the track has gone without an observation.
func (t *Track) Unseen(now time.Duration) time.Duration {
	return now - t.LastSeen
}

// Distance returns the Euclidean distance between two positions.
func Distance(a, b Position) float64 {
	return r2.Norm(r2.Sub(a, b))
}
