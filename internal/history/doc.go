// Package history journals capture negotiations in a small SQLite database so
// operators can see when consent was requested, whether a restore token was
// reused, and how each attempt ended. Writes are best-effort from the
// daemon's point of view; the CLI reads the journal back for display.
package history
