// Package version exposes build metadata of parking-monitor.
//
// Version, Commit and BuildTime are injected with -ldflags at build time.
package version
