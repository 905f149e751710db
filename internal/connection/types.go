package connection

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrInvalidURL      = errors.New("invalid websocket url")
	ErrUnknownDriver   = errors.New("unknown transport driver")
)

// Close codes reported in CloseEvent.Code (RFC 6455).
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseNoStatus      = 1005
	CloseAbnormal      = 1006
	CloseInternalError = 1011
)

// MessageType is the frame type of a message.
type MessageType int

const (
	TextMessage MessageType = iota + 1
	BinaryMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is one inbound frame, passed through untouched.
type Message struct {
	Type       MessageType
	Data       []byte    // Raw frame payload
	ReceivedAt time.Time // Local timestamp when the read returned
	SessionID  string    // Transport that delivered the frame
}

// CloseEvent describes how a transport ended.
type CloseEvent struct {
	Code     int
	Reason   string
	WasClean bool
	Err      error // Cause for abnormal closes and open failures; nil otherwise
}

// Handlers is the caller-supplied callback set. Every field is optional.
// All callbacks run on the manager's loop goroutine, one at a time.
type Handlers struct {
	OnOpen      func()
	OnMessage   func(Message)
	OnClose     func(CloseEvent)
	OnError     func(error)
	OnReconnect func(attempt int)
}

// RetryPolicy controls automatic reconnection after a close.
type RetryPolicy struct {
	Interval   time.Duration // Fixed wait between a close and the next attempt
	MaxRetries int           // Attempts after a close before giving up
}

// DefaultRetryPolicy returns the policy used when Options.Retry is nil.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Interval:   5 * time.Second,
		MaxRetries: 5,
	}
}

// Options are passed to Manager.Connect.
type Options struct {
	Handlers

	// Retry overrides the manager's default policy. A non-nil policy is
	// used as given, so zero interval and zero retries are honored.
	Retry *RetryPolicy
}

// TransportConfig configures the transports created by a Dialer.
type TransportConfig struct {
	Driver           string        // "gorilla" (default) or "coder"
	HandshakeTimeout time.Duration // Max time for the opening handshake
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Keepalive ping period (0 disables)
	PingTimeout      time.Duration // Max time without ping/pong before the connection is stale
	Header           http.Header   // Static headers sent with the handshake
}

// Transport drivers.
const (
	DriverGorilla = "gorilla"
	DriverCoder   = "coder"
)

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Driver:           DriverGorilla,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	// Retry is used by Connect calls that do not pass their own policy.
	Retry RetryPolicy

	// Teardown, when done, triggers Disconnect.
	// Typically a signal.NotifyContext for SIGINT/SIGTERM.
	Teardown context.Context
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Retry: DefaultRetryPolicy(),
	}
}

// Stats provides statistics about the connection manager.
type Stats struct {
	State             State
	SessionsOpened    int64
	ReconnectAttempts int64
	MessagesReceived  int64
	MessagesSent      int64
	SendsRejected     int64
	PendingEvents     int // Queued on the event loop, not yet delivered
}
