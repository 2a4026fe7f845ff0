// Package health exposes the monitor's liveness over the standard gRPC health
// checking protocol.
//
// The monitored lot is registered as its own service name: it reports SERVING
// while frames are being processed and NOT_SERVING once the feed has ended.
package health
