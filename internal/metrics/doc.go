// Package metrics exposes the monitor's Prometheus collectors.
//
// Collectors live in a private registry served by Handler, so tests and
// multiple monitors in one process never collide on the default registry.
package metrics
