package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/chatlink/internal/loop"
)

// Manager owns at most one WebSocket transport at a time and reopens it on
// a fixed interval after it closes, until the retry budget is spent or
// Disconnect is called.
//
// Methods are safe for concurrent use and never wait on the network.
// Handlers run on the manager's loop goroutine, one at a time, in the
// order the transport produced the events.
type Manager struct {
	cfg    ManagerConfig
	dialer Dialer
	logger *slog.Logger
	loop   *loop.Loop

	// Replaced whole on every Connect; read at delivery time.
	handlers atomic.Pointer[Handlers]

	mu         sync.Mutex
	state      State
	url        string
	policy     RetryPolicy
	retries    int
	current    *attempt    // Live transport; its events are delivered
	timer      *loop.Timer // Pending reconnect
	everOpened bool
	closed     bool

	// Stats
	sessionsOpened    atomic.Int64
	reconnectAttempts atomic.Int64
	received          atomic.Int64
	sent              atomic.Int64
	rejected          atomic.Int64

	stopTeardown func() bool
	closeOnce    sync.Once
}

// attempt ties transport events to the open call that created them.
type attempt struct {
	t Transport // nil when Dialer.Open failed

	// Set by Disconnect under m.mu; only the attempt's OnClose is
	// delivered afterwards.
	detached bool
}

// NewManager creates a Connection Manager. If cfg.Teardown is set, the
// manager disconnects once it is done.
func NewManager(cfg ManagerConfig, dialer Dialer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		logger: logger,
		loop:   loop.New(logger),
	}
	m.handlers.Store(&Handlers{})

	if cfg.Teardown != nil {
		m.stopTeardown = context.AfterFunc(cfg.Teardown, func() {
			m.logger.Info("teardown signal received, disconnecting")
			m.Disconnect()
		})
	}

	return m
}

// Connect opens a session to url unless one is already open or opening.
//
// The handler set in opts always replaces the current one, even when the
// call is otherwise ignored, so the latest caller receives all later
// events. An ignored call keeps the active URL, retry policy and counter.
func (m *Manager) Connect(url string, opts Options) {
	h := opts.Handlers
	m.handlers.Store(&h)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.logger.Warn("connect called on closed manager", "url", url)
		return
	}

	if m.state == StateOpen || m.state == StateConnecting {
		if url != m.url {
			// The active session keeps its endpoint.
			m.logger.Warn("connect ignored, session already active",
				"active_url", m.url,
				"requested_url", url,
				"state", m.state,
			)
		} else {
			m.logger.Debug("already connected or connecting, skipping connect", "state", m.state)
		}
		return
	}

	policy := m.cfg.Retry
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	if policy.Interval < 0 {
		policy.Interval = 0
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	m.url = url
	m.policy = policy
	m.retries = 0
	m.cancelTimerLocked()

	m.logger.Info("connecting",
		"url", url,
		"first", !m.everOpened,
		"retry_interval", policy.Interval,
		"max_retries", policy.MaxRetries,
	)
	m.openLocked()
}

// Disconnect closes the session and suppresses reconnection until the
// next Connect. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	already := m.state == StateManuallyClosed
	m.state = StateManuallyClosed
	m.cancelTimerLocked()

	if a := m.current; a != nil {
		m.current = nil
		a.detached = true
		if a.t != nil {
			switch a.t.ReadyState() {
			case ReadyOpen, ReadyConnecting:
				_ = a.t.Close()
			}
		}
	}

	if !already {
		m.logger.Info("disconnected")
	}
}

// Send writes a text frame. Returns false if no transport is open or the
// write fails. Nothing is queued.
func (m *Manager) Send(data []byte) bool {
	return m.send(TextMessage, data)
}

// SendBinary writes a binary frame. See Send.
func (m *Manager) SendBinary(data []byte) bool {
	return m.send(BinaryMessage, data)
}

// Status reports whether a transport exists and is open.
func (m *Manager) Status() bool {
	m.mu.Lock()
	a := m.current
	m.mu.Unlock()

	return a != nil && a.t != nil && a.t.ReadyState() == ReadyOpen
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	return Stats{
		State:             m.State(),
		SessionsOpened:    m.sessionsOpened.Load(),
		ReconnectAttempts: m.reconnectAttempts.Load(),
		MessagesReceived:  m.received.Load(),
		MessagesSent:      m.sent.Load(),
		SendsRejected:     m.rejected.Load(),
		PendingEvents:     m.loop.Pending(),
	}
}

// Close disconnects, delivers queued events and stops the loop.
// Must not be called from a handler.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.stopTeardown != nil {
			m.stopTeardown()
		}
		m.Disconnect()

		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		m.loop.Close()
	})
}

func (m *Manager) send(mt MessageType, data []byte) bool {
	m.mu.Lock()
	a := m.current
	m.mu.Unlock()

	if a == nil || a.t == nil || a.t.ReadyState() != ReadyOpen {
		m.rejected.Add(1)
		m.logger.Warn("cannot send, connection not ready")
		return false
	}

	if err := a.t.Send(mt, data); err != nil {
		m.rejected.Add(1)
		m.logger.Warn("send failed", "session", a.t.ID(), "error", err)
		return false
	}

	m.sent.Add(1)
	return true
}

// openLocked replaces the current transport with a new one.
// Must be called with m.mu held.
func (m *Manager) openLocked() {
	if old := m.current; old != nil {
		m.current = nil
		if old.t != nil {
			_ = old.t.Close()
		}
	}
	m.state = StateConnecting

	a := &attempt{}
	m.current = a

	t, err := m.dialer.Open(m.url, m.eventsFor(a))
	if err != nil {
		// Open failures take the close path so the retry policy applies.
		m.logger.Warn("failed to open transport", "url", m.url, "error", err)
		m.loop.Post(func() {
			m.handleClose(a, CloseEvent{
				Code: CloseAbnormal,
				Err:  fmt.Errorf("open transport: %w", err),
			})
		})
		return
	}
	a.t = t
}

// eventsFor routes transport events onto the loop.
func (m *Manager) eventsFor(a *attempt) Events {
	return Events{
		OnOpen: func() {
			m.loop.Post(func() { m.handleOpen(a) })
		},
		OnMessage: func(msg Message) {
			m.loop.Post(func() { m.handleMessage(a, msg) })
		},
		OnError: func(err error) {
			m.loop.Post(func() { m.handleError(a, err) })
		},
		OnClose: func(ev CloseEvent) {
			m.loop.Post(func() { m.handleClose(a, ev) })
		},
	}
}

func (m *Manager) handleOpen(a *attempt) {
	m.mu.Lock()
	if m.current != a {
		m.mu.Unlock()
		return
	}
	m.state = StateOpen
	m.retries = 0
	first := !m.everOpened
	m.everOpened = true
	url := m.url
	m.mu.Unlock()

	m.sessionsOpened.Add(1)
	if first {
		m.logger.Info("first connection established", "url", url, "session", a.t.ID())
	} else {
		m.logger.Info("connection open", "url", url, "session", a.t.ID())
	}

	if h := m.handlers.Load(); h.OnOpen != nil {
		h.OnOpen()
	}
}

func (m *Manager) handleMessage(a *attempt, msg Message) {
	m.mu.Lock()
	live := m.current == a
	m.mu.Unlock()
	if !live {
		return
	}

	m.received.Add(1)
	if h := m.handlers.Load(); h.OnMessage != nil {
		h.OnMessage(msg)
	}
}

// handleError reports a transport error. Reconnection waits for the
// close that follows it.
func (m *Manager) handleError(a *attempt, err error) {
	m.mu.Lock()
	live := m.current == a
	m.mu.Unlock()
	if !live {
		return
	}

	m.logger.Warn("connection error", "error", err)
	if h := m.handlers.Load(); h.OnError != nil {
		h.OnError(err)
	}
}

func (m *Manager) handleClose(a *attempt, ev CloseEvent) {
	m.mu.Lock()
	switch {
	case a.detached:
		a.detached = false
		m.mu.Unlock()
		m.logger.Debug("connection closed after disconnect", "code", ev.Code)
		m.notifyClose(ev)
		return
	case m.current != a:
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.state = StateClosed
	m.mu.Unlock()

	m.logger.Warn("connection closed",
		"code", ev.Code,
		"reason", ev.Reason,
		"error", ev.Err,
	)
	m.notifyClose(ev)
	m.scheduleRetry()
}

func (m *Manager) notifyClose(ev CloseEvent) {
	if h := m.handlers.Load(); h.OnClose != nil {
		h.OnClose(ev)
	}
}

// scheduleRetry applies the retry policy after a close.
func (m *Manager) scheduleRetry() {
	m.mu.Lock()

	// Disconnect or Connect ran inside OnClose.
	if m.state != StateClosed || m.current != nil {
		m.mu.Unlock()
		return
	}

	if m.retries >= m.policy.MaxRetries {
		retries, maxRetries := m.retries, m.policy.MaxRetries
		m.mu.Unlock()
		m.logger.Warn("max reconnect attempts reached, giving up",
			"attempts", retries,
			"max_retries", maxRetries,
		)
		return
	}

	m.retries++
	n := m.retries
	maxRetries := m.policy.MaxRetries
	interval := m.policy.Interval

	m.state = StateRetrying
	m.cancelTimerLocked()
	var tm *loop.Timer
	tm = m.loop.AfterFunc(interval, func() { m.fireRetry(tm) })
	m.timer = tm
	m.mu.Unlock()

	m.reconnectAttempts.Add(1)
	m.logger.Info("reconnecting",
		"attempt", n,
		"max_retries", maxRetries,
		"interval", interval,
	)

	if h := m.handlers.Load(); h.OnReconnect != nil {
		h.OnReconnect(n)
	}
}

func (m *Manager) fireRetry(tm *loop.Timer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != tm || m.state != StateRetrying {
		return
	}
	m.timer = nil
	m.openLocked()
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Cancel()
		m.timer = nil
	}
}
