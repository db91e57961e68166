// Package logging builds the slog loggers used across rdesktopd.
//
// Console output is a compact, human-oriented format that promotes the
// component attribute into the header; JSON output uses ts/level/msg keys for
// machine consumption. Loggers can carry a run identifier on every record,
// tee into additional handlers for diagnostics, and apply per-component level
// overrides from configuration.
package logging
