// Package ws serves the game's line protocol over WebSocket, one text frame
// per line, for browser clients.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
	"github.com/cory-johannsen/tictactoe/internal/observability"
)

// Server accepts WebSocket upgrades on a single path and dispatches each
// connection to a session.Handler.
type Server struct {
	cfg      config.WebSocketConfig
	timeouts config.ListenerConfig
	handler  session.Handler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Conn]struct{}
	stopping bool
	wg       sync.WaitGroup
	quit     chan struct{}
}

// NewServer creates a WebSocket server. Read and write timeouts and the
// shutdown grace period come from the game listener settings.
//
// Precondition: handler and logger must be non-nil.
func NewServer(cfg config.WebSocketConfig, timeouts config.ListenerConfig, handler session.Handler, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		timeouts: timeouts,
		handler:  handler,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
		quit:  make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.serveWS)
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler serving upgrades, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe binds the configured address and serves until Stop is called.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(listener)
}

// Serve serves upgrades on listener until Stop is called.
//
// Postcondition: Returns nil after Stop, or the serving error otherwise.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("websocket listener started",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.cfg.Path),
	)
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := NewConn(socket, s.timeouts.ReadTimeout, s.timeouts.WriteTimeout)

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()
	}()

	addr := conn.RemoteAddr().String()
	start := time.Now()
	s.logger.Info("websocket client connected", observability.RemoteAddr(addr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.handler.HandleSession(ctx, conn); err != nil {
		s.logger.Debug("websocket session ended",
			observability.RemoteAddr(addr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	s.logger.Info("websocket client disconnected",
		observability.RemoteAddr(addr),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop stops accepting upgrades and waits up to the shutdown grace period for
// connection workers to exit before closing what remains. Workers still
// running after a second grace period are abandoned.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	close(s.quit)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeouts.ShutdownGrace)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("websocket http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.mu.Lock()
		n := len(s.conns)
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		s.logger.Warn("shutdown grace expired, closing remaining websocket connections", zap.Int("connections", n))
		select {
		case <-done:
		case <-time.After(s.timeouts.ShutdownGrace):
			s.logger.Error("abandoning websocket workers", zap.Int("workers", s.Connections()))
		}
	}
	s.logger.Info("websocket listener stopped")
}

// Connections returns the number of open WebSocket sessions.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
