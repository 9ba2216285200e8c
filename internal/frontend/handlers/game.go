// Package handlers binds accepted transport connections to game sessions.
package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/game/room"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
	"github.com/cory-johannsen/tictactoe/internal/observability"
	"github.com/cory-johannsen/tictactoe/internal/protocol"
)

// GameHandler implements session.Handler. It runs one Session per connection
// against a shared Registry and tracks every live Session for shutdown.
type GameHandler struct {
	cfg      config.GameConfig
	registry *room.Registry
	sessions *session.Manager
	logger   *zap.Logger
	stopping atomic.Bool
}

// NewGameHandler creates a GameHandler over registry.
//
// Precondition: registry and logger must be non-nil.
// Postcondition: Returns a GameHandler with an empty session Manager.
func NewGameHandler(cfg config.GameConfig, registry *room.Registry, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		cfg:      cfg,
		registry: registry,
		sessions: session.NewManager(),
		logger:   logger,
	}
}

// HandleSession runs a Session over conn until the client disconnects or the
// handler shuts down.
//
// Postcondition: The session has left its room and its transport is closed.
func (h *GameHandler) HandleSession(ctx context.Context, conn session.Conn) error {
	if h.stopping.Load() {
		_ = conn.WriteLine(protocol.Message("Server is shutting down"))
		return nil
	}

	s := session.New(conn, h.registry, h.cfg, h.logger)
	if err := h.sessions.Add(s); err != nil {
		s.Close()
		return err
	}
	defer func() {
		_ = h.sessions.Remove(s.ID())
	}()

	// Shutdown may have started between the check above and Add.
	if h.stopping.Load() {
		s.Send(protocol.Message("Server is shutting down"))
		s.Close()
		<-s.Done()
		return nil
	}

	start := time.Now()
	err := s.Run(ctx)
	<-s.Done()
	h.logger.Debug("session finished",
		observability.SessionID(s.ID()),
		zap.String("name", s.Name()),
		zap.Duration("duration", time.Since(start)),
		zap.Int("live_sessions", h.sessions.Count()-1),
	)
	return err
}

// Shutdown notifies every room occupant, then closes every live session,
// including those that never joined a room.
//
// Postcondition: No new sessions are started.
func (h *GameHandler) Shutdown() {
	if !h.stopping.CompareAndSwap(false, true) {
		return
	}
	h.registry.Shutdown()
	n := h.sessions.CloseAll()
	h.logger.Info("game handler shut down", zap.Int("sessions_closed", n))
}

// Sessions returns the number of live sessions.
func (h *GameHandler) Sessions() int {
	return h.sessions.Count()
}

// Rooms returns a snapshot of every live room.
func (h *GameHandler) Rooms() []room.Info {
	return h.registry.Rooms()
}
