// Package daemon coordinates the long-running rdesktopd process and its
// system integration points.
//
// It wires configuration, the capture manager, the client listeners, the
// input injector, the session-bus announcement, and the hotplug watcher into a
// single lifecycle with flock-based locking to prevent multiple instances.
// Start negotiates capture before any listener opens, so clients always see
// the final desktop list. Stop runs the teardown in reverse: the daemon
// context is cancelled (which kills encoders), connected clients receive End,
// the portal session is closed, and the lock is released.
//
// Keep orchestration logic here: protocol details belong to their respective
// packages while the daemon focuses on startup, shutdown, and status.
package daemon
