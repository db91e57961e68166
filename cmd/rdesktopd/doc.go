// Package main hosts the rdesktopd entrypoint and command graph.
//
// The Cobra-based command tree starts the streaming daemon, queries a running
// daemon for its desktops over the client wire protocol, prints the capture
// negotiation journal, and scaffolds configuration. Configuration resolution
// is centralized in commandContext so subcommands only deal with output.
//
// Keep this package lean: new behavior belongs in internal packages first and
// is surfaced here through dedicated commands or flags.
package main
