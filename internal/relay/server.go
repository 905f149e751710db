package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/chatlink/internal/api"
	"github.com/rickgao/chatlink/internal/version"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 20 * time.Second
	closeGrace   = time.Second
	maxFrameSize = 1 << 20
)

// Config holds relay server settings.
type Config struct {
	Addr            string        // Listen address, e.g. ":8090"
	ShutdownTimeout time.Duration // Max wait for peers and HTTP connections on shutdown
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8090",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server is the chat relay.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	hub      *hub
	upgrader websocket.Upgrader
	router   chi.Router

	frames atomic.Int64
}

// NewServer creates a relay. Call Run or Serve to accept connections, or
// mount Handler on an existing server.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		hub:    newHub(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
	}

	r := chi.NewRouter()
	r.Get("/ws", s.handleWS)
	r.Get("/health", s.handleHealth)
	s.router = r

	return s
}

// Handler returns the relay's HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on cfg.Addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("relay listening", "addr", ln.Addr().String(), "version", version.Version)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		peerErr := s.Shutdown(sctx)
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return peerErr
	})

	err := g.Wait()
	s.logger.Info("relay stopped", "frames", s.frames.Load())
	return err
}

// Shutdown sends every peer a going-away close frame, refuses new peers,
// and waits for peer goroutines to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("relay shutting down", "peers", s.hub.count())
	s.hub.closeAll("server shutdown")

	done := make(chan struct{})
	go func() {
		s.hub.wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for peers: %w", ctx.Err())
	}
}

// Peers returns the number of connected peers.
func (s *Server) Peers() int {
	return s.hub.count()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub.isClosing() {
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := s.hub.add(conn)
	if p == nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	logger := s.logger.With("peer", p.id)
	logger.Info("peer connected", "remote", r.RemoteAddr, "peers", s.hub.count())

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go s.pingLoop(p, done)

	defer func() {
		close(done)
		s.hub.remove(p)
		_ = conn.Close()
		logger.Info("peer disconnected", "peers", s.hub.count())
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Debug("peer read error", "error", err)
			}
			return
		}

		s.frames.Add(1)
		s.hub.broadcast(p.id, mt, data)
	}
}

func (s *Server) pingLoop(p *peer, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := p.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := api.StatusOK
	if s.hub.isClosing() {
		status = api.StatusShuttingDown
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(api.Health{
		Status:  status,
		Peers:   s.hub.count(),
		Frames:  s.frames.Load(),
		Version: version.Version,
	})
}
