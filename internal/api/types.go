package api

// Health is the body of GET /health.
type Health struct {
	Status  string `json:"status"`  // "ok" while serving, "shutting_down" after Shutdown starts
	Peers   int    `json:"peers"`   // Connected WebSocket peers
	Frames  int64  `json:"frames"`  // Frames relayed since start
	Version string `json:"version"` // Build version of the relay
}

// Health status values.
const (
	StatusOK           = "ok"
	StatusShuttingDown = "shutting_down"
)
