// Package status publishes occupancy snapshots to an external HTTP endpoint.
//
// The Reporter decides when a report is due on the feed's logical clock and
// hands the snapshot to a background worker, so network latency never stalls
// frame processing. Each attempt yields a Result whose error kind can be
// inspected with errors.Is; failures are logged and never fatal.
package status
