// Package monitor runs the occupancy pipeline over one frame feed.
//
// A producer goroutine reads frames and calls the detector, a single consumer
// owns the track table and the frame clock, and a reporter worker performs the
// status reports. The consumer is the only writer of tracking state.
package monitor
