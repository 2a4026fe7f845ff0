// Package integration holds end-to-end tests that run the monitor against
// real HTTP and gRPC endpoints on loopback.
package integration
