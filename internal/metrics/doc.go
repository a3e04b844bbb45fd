// Package metrics defines and registers Flare's Prometheus collectors.
//
// All collectors are package-level variables registered at init, so any
// package can update them without wiring. The exposition handler is mounted
// by the HTTP server under /metrics.
package metrics
