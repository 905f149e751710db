package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// peer is one connected WebSocket client.
type peer struct {
	id   string
	conn *websocket.Conn

	// Write serialization
	mu sync.Mutex
}

func (p *peer) write(mt int, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(mt, data)
}

func (p *peer) writeControl(mt int, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteControl(mt, data, time.Now().Add(writeWait))
}

// hub tracks peers and fans frames out to them.
type hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	peers   map[string]*peer
	closing bool

	wg sync.WaitGroup
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger: logger,
		peers:  make(map[string]*peer),
	}
}

// add registers conn. Returns nil once the hub is shutting down.
func (h *hub) add(conn *websocket.Conn) *peer {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return nil
	}
	p := &peer{id: uuid.NewString(), conn: conn}
	h.peers[p.id] = p
	h.wg.Add(1)
	return p
}

func (h *hub) remove(p *peer) {
	h.mu.Lock()
	delete(h.peers, p.id)
	h.mu.Unlock()
	h.wg.Done()
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *hub) isClosing() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closing
}

func (h *hub) snapshot() []*peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	return peers
}

// broadcast writes one frame to every peer. A failed write is logged and
// left for that peer's read loop to clean up.
func (h *hub) broadcast(from string, mt int, data []byte) {
	for _, p := range h.snapshot() {
		if err := p.write(mt, data); err != nil {
			h.logger.Debug("broadcast write failed", "peer", p.id, "from", from, "error", err)
		}
	}
}

// closeAll stops accepting peers and sends every peer a going-away close frame.
func (h *hub) closeAll(reason string) {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	for _, p := range h.snapshot() {
		_ = p.writeControl(websocket.CloseMessage, msg)
		// Unblocks the read loop if the peer never answers the close.
		_ = p.conn.SetReadDeadline(time.Now().Add(closeGrace))
	}
}

// wait blocks until every peer goroutine has returned.
func (h *hub) wait() {
	h.wg.Wait()
}
