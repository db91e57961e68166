// Package encoder supervises the external per-desktop encoder processes.
//
// For each desktop the Supervisor reserves an ephemeral loopback port, starts
// the configured encoder command with the desktop's PipeWire node, size, and
// port substituted into its arguments, and keeps one goroutine watching the
// shutdown context. When that context is cancelled the process is killed.
// Launch returns a Handle so callers and tests can wait for teardown instead
// of relying on timing.
package encoder
