package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// gorillaDialer opens transports backed by gorilla/websocket.
type gorillaDialer struct {
	cfg    TransportConfig
	logger *slog.Logger
}

// Open validates the URL and dials in the background.
func (d *gorillaDialer) Open(rawURL string, ev Events) (Transport, error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	t := &gorillaTransport{
		session: newSession(u, ev, d.logger),
		cfg:     d.cfg,
	}
	go t.run()
	return t, nil
}

// gorillaTransport is a single gorilla/websocket connection.
type gorillaTransport struct {
	*session
	cfg TransportConfig

	mu   sync.Mutex
	conn *websocket.Conn

	// Write serialization
	writeMu sync.Mutex

	lastPingAt atomic.Int64 // UnixNano
}

// run dials, then reads until the connection ends.
func (t *gorillaTransport) run() {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(t.ctx, t.url, t.cfg.Header.Clone())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.fail(fmt.Errorf("dial: %w", err))
		return
	}

	t.mu.Lock()
	if t.closing.Load() || !t.markOpen() {
		t.mu.Unlock()
		_ = conn.Close()
		t.finish(CloseEvent{Code: CloseNormal, WasClean: true})
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.touch()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		t.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		t.touch()
		return nil
	})

	t.logger.Debug("websocket connected", "url", t.url)
	t.emitOpen()

	if t.cfg.PingInterval > 0 {
		go t.heartbeatLoop(conn)
	}
	t.readLoop(conn)
}

// Close sends a close frame and tears the connection down without blocking.
func (t *gorillaTransport) Close() error {
	if !t.beginClose() {
		return nil
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		// Still dialing; cancelling the context aborts the handshake.
		t.cancel()
		return nil
	}

	// The close frame write may stall on a dead peer; callers must not.
	go func() {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}()
	return nil
}

// Send writes one frame.
func (t *gorillaTransport) Send(mt MessageType, data []byte) error {
	if t.ReadyState() != ReadyOpen {
		return ErrNotConnected
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	wsType := websocket.TextMessage
	if mt == BinaryMessage {
		wsType = websocket.BinaryMessage
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return conn.WriteMessage(wsType, data)
}

// readLoop delivers frames in arrival order until the first read error.
func (t *gorillaTransport) readLoop(conn *websocket.Conn) {
	for {
		wsType, data, err := conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			_ = conn.Close()
			t.readFailed(err)
			return
		}

		t.touch()
		mt := TextMessage
		if wsType == websocket.BinaryMessage {
			mt = BinaryMessage
		}
		t.emitMessage(mt, data, receivedAt)
	}
}

func (t *gorillaTransport) readFailed(err error) {
	// gorilla reports an unexpected EOF as a 1006 CloseError.
	var ce *websocket.CloseError
	if !t.closing.Load() && errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		// Server-initiated close handshake
		t.finish(CloseEvent{Code: ce.Code, Reason: ce.Text, WasClean: true})
		return
	}
	t.fail(fmt.Errorf("read: %w", err))
}

// heartbeatLoop pings the server and closes stale connections.
func (t *gorillaTransport) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	writeWait := t.cfg.WriteTimeout
	if writeWait <= 0 {
		writeWait = time.Second
	}

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			if t.cfg.PingTimeout <= 0 {
				continue
			}
			lastPing := time.Unix(0, t.lastPingAt.Load())
			if time.Since(lastPing) > t.cfg.PingTimeout {
				t.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", t.cfg.PingTimeout,
				)
				t.fail(ErrStaleConnection)
				_ = conn.Close()
				return
			}
		}
	}
}

func (t *gorillaTransport) touch() {
	t.lastPingAt.Store(time.Now().UnixNano())
}
