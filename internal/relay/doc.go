// Package relay implements a local chat relay for development and tests.
//
// The relay:
//   - Accepts WebSocket peers on GET /ws
//   - Broadcasts every inbound frame, unchanged and with its frame type,
//     to every connected peer including the sender
//   - Reports liveness and peer count on GET /health
//   - Sends 1001 (going away) to every peer on Shutdown
package relay
