// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns at most one WebSocket transport and at most one pending reconnect
//   - Reconnects on a fixed interval after a close, up to MaxRetries attempts
//   - Stops reconnecting after Disconnect until the next Connect
//   - Delivers open/message/close/error/reconnect events to the handler set
//     of the most recent Connect call
//   - Passes frames through untouched; Send never queues
//
// Transports come from a Dialer: gorilla/websocket by default, or
// coder/websocket.
package connection
