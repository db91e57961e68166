// Package preflight provides readiness checks for the external programs,
// devices, and session services rdesktopd depends on.
//
// These checks run in two contexts:
//   - The daemon logs a snapshot of RunAll at startup so a failed negotiation
//     can be traced back to a missing encoder or portal.
//   - The CLI "rdesktopd check" command renders the same results as a table.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
