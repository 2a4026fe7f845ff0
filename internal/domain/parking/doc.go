// Package parking contains the occupancy engine: a logical frame clock, the
// per-vehicle Track, the dwell classifier that decides when a track counts as
// parked, the Table that owns all live tracks, and the Snapshot derived from it.
//
// Nothing in this package performs I/O or starts goroutines. A Table is owned
// by exactly one goroutine; other components receive Snapshot values.
package parking
