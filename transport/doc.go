// Package transport provides the persistent event-framed connection to the
// overlay server.
//
// Frames are JSON text messages of the form {"event": name, "data": ...}
// exchanged over a WebSocket. Handlers are registered per event name, in the
// style of a packet-type handler registry. The connection reconnects
// automatically with a bounded number of attempts; every successful
// (re)connect fires the connect callback so the session layer can repeat
// its authentication handshake.
package transport
