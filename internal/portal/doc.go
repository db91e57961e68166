// Package portal talks to the desktop portal's ScreenCast interface over the
// session bus.
//
// Every portal method returns a Request object path immediately and reports
// its real outcome later through an org.freedesktop.portal.Request.Response
// signal emitted on that path. Correlate joins the two halves: it issues the
// call and reads the signal concurrently, verifies that the signal came from
// the request the call created, and decodes the typed result.
//
// Client wraps Correlate for the three calls a capture needs (CreateSession,
// SelectSources, Start) plus Session.Close. The Bus interface keeps the
// transport replaceable; NewSessionBus provides the godbus implementation.
package portal
