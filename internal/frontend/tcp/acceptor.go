// Package tcp is the game server's listener: it accepts TCP connections and
// runs one worker goroutine per connection.
package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
	"github.com/cory-johannsen/tictactoe/internal/observability"
)

// Acceptor listens for game connections on a TCP port and dispatches each
// connection to a session.Handler.
type Acceptor struct {
	cfg     config.ListenerConfig
	handler session.Handler
	logger  *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
	conns    map[net.Conn]struct{}
}

// NewAcceptor creates an acceptor with the given configuration.
//
// Precondition: handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ListenerConfig, handler session.Handler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		quit:    make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds the configured address and serves until Stop is called.
//
// Postcondition: Returns a non-nil error only if the address cannot be bound.
func (a *Acceptor) ListenAndServe() error {
	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(listener)
}

// Serve accepts connections on listener until Stop is called. Accept errors
// are logged and do not stop the loop.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) Serve(listener net.Listener) error {
	a.mu.Lock()
	select {
	case <-a.quit:
		a.mu.Unlock()
		listener.Close()
		return nil
	default:
	}
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("game listener started", zap.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-a.quit:
				return nil
			default:
				a.logger.Error("accepting connection", zap.Error(err))
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		if !a.track(conn) {
			conn.Close()
			continue
		}
		go a.handleConn(conn)
	}
}

// track records conn and counts its worker unless the acceptor is stopping.
// Both happen under mu so Stop never waits on a counter that is about to grow.
func (a *Acceptor) track(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return false
	}
	a.conns[conn] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(conn net.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, conn)
}

// handleConn is the per-connection worker.
func (a *Acceptor) handleConn(raw net.Conn) {
	defer a.wg.Done()
	defer a.untrack(raw)
	start := time.Now()
	addr := raw.RemoteAddr().String()

	a.logger.Info("client connected", observability.RemoteAddr(addr))

	conn := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-a.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := a.handler.HandleSession(ctx, conn); err != nil {
		a.logger.Debug("session ended",
			observability.RemoteAddr(addr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
	} else {
		a.logger.Info("client disconnected",
			observability.RemoteAddr(addr),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// Stop closes the listener and waits up to the configured shutdown grace for
// connection workers to exit. Connections still open after the grace period
// are closed forcibly, and workers that still have not exited after a second
// grace period are abandoned.
//
// Postcondition: No new connections are accepted and every connection is closed.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		select {
		case <-a.quit:
		default:
			close(a.quit)
		}
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.quit)
	if a.listener != nil {
		a.listener.Close()
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(a.cfg.ShutdownGrace):
		n := a.closeAll()
		a.logger.Warn("shutdown grace expired, closing remaining connections", zap.Int("connections", n))
		select {
		case <-done:
		case <-time.After(a.cfg.ShutdownGrace):
			a.logger.Error("abandoning connection workers", zap.Int("workers", a.Connections()))
		}
	}

	a.logger.Info("game listener stopped")
}

func (a *Acceptor) closeAll() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	for conn := range a.conns {
		conn.Close()
	}
	return len(a.conns)
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Connections returns the number of open connections.
func (a *Acceptor) Connections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}
