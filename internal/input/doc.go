// Package input injects remote keyboard and mouse events into the local
// session through virtual uinput devices.
//
// Clients describe keys with browser KeyboardEvent.code names ("KeyA",
// "Digit1", "Enter") and mouse activity as relative moves plus button
// transitions. The Manager drains a bounded channel of batches in order and
// writes each batch to the matching Device followed by a SYN_REPORT. Emit
// failures are logged and the loop keeps going.
package input
