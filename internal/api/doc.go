// Package api provides the client for the relay's HTTP API.
//
// Endpoints:
//   - GET /health: liveness, connected peers, relayed frames, build version
//
// Requests are retried with jittered exponential backoff on 5xx and 429.
package api
