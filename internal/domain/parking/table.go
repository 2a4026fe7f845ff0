package parking

import (
	"cmp"
	"slices"
	"time"
)

// Table owns the live tracks of one monitored feed.
// It is not safe for concurrent use: a single goroutine applies frames in order.
type Table struct {
	// thresholds drive the dwell classifier for every track.
	thresholds Thresholds
	// expiry is how long a track may go unseen before eviction.
	expiry time.Duration
	// tracks holds live tracks keyed by upstream identifier.
	tracks map[TrackID]*Track
	// expired counts evictions over the table lifetime.
	expired uint64
}

// NewTable creates an empty table. A non-positive expiry falls back to DefaultExpiryWindow.
func NewTable(thresholds Thresholds, expiry time.Duration) *Table {
	if expiry <= 0 {
		expiry = DefaultExpiryWindow
	}

	return &Table{
		thresholds: thresholds,
		expiry:     expiry,
		tracks:     make(map[TrackID]*Track),
	}
}

// Update applies one frame of detections observed at logical time now, dt after
// the previous frame. New identifiers start a track with zero dwell; known ones
// are classified against their previous position. Tracks missing from the frame
// are left alone until Expire removes them.
func (t *Table) Update(now time.Duration, detections Detections, dt time.Duration) {
	for id, pos := range detections {
		track, ok := t.tracks[id]
		if !ok {
			t.tracks[id] = newTrack(id, pos, now)
			continue
		}

		track.observe(now, pos, dt, t.thresholds)
	}
}

// Expire removes every track unseen for longer than the expiry window and
// returns how many were removed.
func (t *Table) Expire(now time.Duration) int {
	removed := 0

	for id, track := range t.tracks {
		if track.Unseen(now) > t.expiry {
			delete(t.tracks, id)
			removed++
		}
	}

	t.expired += uint64(removed)

	return removed
}

// Step applies one frame and then evicts stale tracks, returning the number evicted.
func (t *Table) Step(now time.Duration, detections Detections, dt time.Duration) int {
	t.Update(now, detections, dt)

	return t.Expire(now)
}

// Count returns the number of parked tracks.
func (t *Table) Count() int {
	count := 0

	for _, track := range t.tracks {
		if track.Parked {
			count++
		}
	}

	return count
}

// Len returns the number of live tracks.
func (t *Table) Len() int {
	return len(t.tracks)
}

// Expired returns the total number of evicted tracks.
func (t *Table) Expired() uint64 {
	return t.expired
}

// Get returns a copy of the track with the given identifier.
func (t *Table) Get(id TrackID) (Track, bool) {
	track, ok := t.tracks[id]
	if !ok {
		return Track{}, false
	}

	return *track, true
}

// Tracks returns copies of all live tracks ordered by identifier.
func (t *Table) Tracks() []Track {
	result := make([]Track, 0, len(t.tracks))
	for _, track := range t.tracks {
		result = append(result, *track)
	}

	slices.SortFunc(result, func(a, b Track) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return result
}

// Snapshot captures the current occupancy as a value safe to hand to other goroutines.
func (t *Table) Snapshot(now time.Duration, capacity int) Snapshot {
	return Snapshot{
		At:         now,
		Occupied:   t.Count(),
		Capacity:   capacity,
		LiveTracks: t.Len(),
	}
}
