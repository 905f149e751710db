package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// coderReadLimit caps a single inbound frame.
const coderReadLimit = 32 << 20

// coderDialer opens transports backed by coder/websocket.
type coderDialer struct {
	cfg    TransportConfig
	logger *slog.Logger
}

// Open validates the URL and dials in the background.
func (d *coderDialer) Open(rawURL string, ev Events) (Transport, error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	t := &coderTransport{
		session: newSession(u, ev, d.logger),
		cfg:     d.cfg,
	}
	go t.run()
	return t, nil
}

// coderTransport is a single coder/websocket connection.
type coderTransport struct {
	*session
	cfg TransportConfig

	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *coderTransport) run() {
	dialCtx := t.ctx
	if t.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(t.ctx, t.cfg.HandshakeTimeout)
		defer cancel()
	}

	conn, resp, err := websocket.Dial(dialCtx, t.url, &websocket.DialOptions{
		HTTPHeader: t.cfg.Header.Clone(),
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.fail(fmt.Errorf("dial: %w", err))
		return
	}
	conn.SetReadLimit(coderReadLimit)

	t.mu.Lock()
	if t.closing.Load() || !t.markOpen() {
		t.mu.Unlock()
		_ = conn.CloseNow()
		t.finish(CloseEvent{Code: CloseNormal, WasClean: true})
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.logger.Debug("websocket connected", "url", t.url, "driver", DriverCoder)
	t.emitOpen()

	if t.cfg.PingInterval > 0 {
		go t.heartbeatLoop(conn)
	}
	t.readLoop(conn)
}

// Close runs the close handshake in the background.
func (t *coderTransport) Close() error {
	if !t.beginClose() {
		return nil
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		t.cancel()
		return nil
	}

	go func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()
	return nil
}

// Send writes one frame.
func (t *coderTransport) Send(mt MessageType, data []byte) error {
	if t.ReadyState() != ReadyOpen {
		return ErrNotConnected
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	ctx := t.ctx
	if t.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.WriteTimeout)
		defer cancel()
	}

	typ := websocket.MessageText
	if mt == BinaryMessage {
		typ = websocket.MessageBinary
	}
	return conn.Write(ctx, typ, data)
}

func (t *coderTransport) readLoop(conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(t.ctx)
		receivedAt := time.Now()

		if err != nil {
			t.readFailed(err)
			_ = conn.CloseNow()
			return
		}

		mt := TextMessage
		if typ == websocket.MessageBinary {
			mt = BinaryMessage
		}
		t.emitMessage(mt, data, receivedAt)
	}
}

func (t *coderTransport) readFailed(err error) {
	var ce websocket.CloseError
	if !t.closing.Load() && errors.As(err, &ce) && ce.Code != websocket.StatusAbnormalClosure {
		t.finish(CloseEvent{Code: int(ce.Code), Reason: ce.Reason, WasClean: true})
		return
	}
	t.fail(fmt.Errorf("read: %w", err))
}

// heartbeatLoop pings the server; a ping without pong inside PingTimeout
// marks the connection stale.
func (t *coderTransport) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	timeout := t.cfg.PingTimeout
	if timeout <= 0 {
		timeout = t.cfg.PingInterval
	}

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(t.ctx, timeout)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				continue
			}
			if t.ctx.Err() != nil {
				return
			}
			t.logger.Warn("ping failed, connection stale", "timeout", timeout, "error", err)
			t.fail(fmt.Errorf("%w: %v", ErrStaleConnection, err))
			_ = conn.CloseNow()
			return
		}
	}
}
