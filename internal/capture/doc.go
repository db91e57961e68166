// Package capture negotiates screen-capture access with the desktop portal and
// turns the granted streams into Desktops with running encoders.
//
// A Manager owns at most one portal session. BeginCapture walks the session
// through CreateSession, SelectSources, and Start, reusing a persisted restore
// token so consent is only requested once. Streams without an id or size are
// dropped, survivors are indexed densely from zero, and one encoder is
// launched per Desktop. A failed launch drops only that Desktop.
//
// A second BeginCapture while a session exists fails with ErrAlreadyStarted;
// callers are never queued.
package capture
