package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Transport is a single WebSocket session. A transport is never reused:
// once it reports OnClose, the manager creates a new one.
type Transport interface {
	// ID returns the session ID (a UUID) used in logs and messages.
	ID() string

	// ReadyState returns the current transport state.
	ReadyState() ReadyState

	// Send writes one frame. Returns ErrNotConnected unless the transport is open.
	Send(t MessageType, data []byte) error

	// Close starts a graceful close. OnClose follows asynchronously.
	Close() error
}

// Events receives transport notifications. They are called from
// transport goroutines; OnClose is called exactly once per transport.
type Events struct {
	OnOpen    func()
	OnMessage func(Message)
	OnError   func(error)
	OnClose   func(CloseEvent)
}

// Dialer creates transports.
type Dialer interface {
	// Open validates rawURL and starts connecting in the background.
	// A returned error means no transport was created and no events follow.
	Open(rawURL string, ev Events) (Transport, error)
}

// NewDialer returns the Dialer for cfg.Driver.
func NewDialer(cfg TransportConfig, logger *slog.Logger) (Dialer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case "", DriverGorilla:
		return &gorillaDialer{cfg: cfg, logger: logger}, nil
	case DriverCoder:
		return &coderDialer{cfg: cfg, logger: logger}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// normalizeURL checks rawURL and maps http(s) to ws(s).
func normalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if u.Fragment != "" {
		return "", fmt.Errorf("%w: fragment not allowed", ErrInvalidURL)
	}
	return u.String(), nil
}

// session holds what both drivers share: identity, ready state,
// cancellation and the exactly-once close notification.
type session struct {
	id     string
	url    string
	events Events
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state     atomic.Int32
	closing   atomic.Bool // Close was called locally
	closeOnce sync.Once
}

func newSession(rawURL string, ev Events, logger *slog.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	s := &session{
		id:     id,
		url:    rawURL,
		events: ev,
		logger: logger.With("session", id),
		ctx:    ctx,
		cancel: cancel,
	}
	s.state.Store(int32(ReadyConnecting))
	return s
}

func (s *session) ID() string {
	return s.id
}

func (s *session) ReadyState() ReadyState {
	return ReadyState(s.state.Load())
}

// markOpen moves Connecting to Open. Returns false if Close won the race.
func (s *session) markOpen() bool {
	return s.state.CompareAndSwap(int32(ReadyConnecting), int32(ReadyOpen))
}

// beginClose marks a local close. Returns false if one already started.
func (s *session) beginClose() bool {
	if !s.closing.CompareAndSwap(false, true) {
		return false
	}
	if s.ReadyState() != ReadyClosed {
		s.state.Store(int32(ReadyClosing))
	}
	return true
}

func (s *session) emitOpen() {
	if s.events.OnOpen != nil {
		s.events.OnOpen()
	}
}

func (s *session) emitMessage(t MessageType, data []byte, receivedAt time.Time) {
	if s.events.OnMessage != nil {
		s.events.OnMessage(Message{
			Type:       t,
			Data:       data,
			ReceivedAt: receivedAt,
			SessionID:  s.id,
		})
	}
}

func (s *session) emitError(err error) {
	if s.events.OnError != nil {
		s.events.OnError(err)
	}
}

// finish reports the close once and releases the session context.
func (s *session) finish(ev CloseEvent) {
	s.closeOnce.Do(func() { s.report(ev) })
}

// fail reports an abnormal termination: OnError, then OnClose with 1006.
// After a local Close the error is expected and only the close is reported.
func (s *session) fail(err error) {
	s.closeOnce.Do(func() {
		if s.closing.Load() {
			s.report(CloseEvent{Code: CloseNormal, WasClean: true})
			return
		}
		s.emitError(err)
		s.report(CloseEvent{Code: CloseAbnormal, Err: err})
	})
}

func (s *session) report(ev CloseEvent) {
	s.state.Store(int32(ReadyClosed))
	s.cancel()
	s.logger.Debug("websocket closed", "code", ev.Code, "reason", ev.Reason, "error", ev.Err)
	if s.events.OnClose != nil {
		s.events.OnClose(ev)
	}
}
