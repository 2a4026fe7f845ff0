// Package checker probes a running monitor through its gRPC health service.
package checker
