// Package server exposes captured desktops to clients over the wire protocol.
//
// Each connection opens with a Handshake from the client. The server answers
// with its own Handshake and, when the revisions match, a DesktopList built
// from the capture manager. Clients then send SwitchSource to pick a desktop
// or End to leave. The same exchange runs over plain TCP and over WebSocket
// binary messages; WebSocket clients may additionally send JSON text messages
// carrying keyboard and mouse batches for the input manager.
//
// On shutdown every connected client receives End before its connection is
// closed. A framing error closes only the offending connection.
package server
