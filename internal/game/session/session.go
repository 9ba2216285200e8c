// Package session implements the per-connection protocol front end: it reads
// command lines from one client, keeps that client's identity, and routes
// commands to the client's room or to matchmaking.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/game/board"
	"github.com/cory-johannsen/tictactoe/internal/game/room"
	"github.com/cory-johannsen/tictactoe/internal/observability"
	"github.com/cory-johannsen/tictactoe/internal/protocol"
)

// Conn is the line transport a Session speaks over.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(text string) error
	Close() error
	RemoteAddr() net.Addr
}

// Handler serves one accepted connection until it ends. Transports call
// HandleSession from a dedicated goroutine per connection.
type Handler interface {
	HandleSession(ctx context.Context, conn Conn) error
}

// Matchmaker places sessions into rooms and takes them out again.
type Matchmaker interface {
	Join(occ room.Occupant, size int) (*room.Room, board.Cell, error)
	Leave(r *room.Room, occ room.Occupant)
}

// Session is the server-side state of one client connection. It implements
// room.Occupant.
type Session struct {
	id     string
	addr   string
	conn   Conn
	games  Matchmaker
	cfg    config.GameConfig
	logger *zap.Logger

	outbox     *Outbox
	writerDone chan struct{}

	mu       sync.Mutex
	name     string
	gridSize int
	symbol   board.Cell
	room     *room.Room

	closed    atomic.Bool
	closeOnce sync.Once
	leaveOnce sync.Once
}

// New creates a Session over conn and starts its writer.
//
// Precondition: conn, games, and logger must be non-nil.
// Postcondition: Returns a Session with a fresh uuid, the configured default
// name and grid size, and no room.
func New(conn Conn, games Matchmaker, cfg config.GameConfig, logger *zap.Logger) *Session {
	id := uuid.New().String()
	addr := conn.RemoteAddr().String()
	s := &Session{
		id:         id,
		addr:       addr,
		conn:       conn,
		games:      games,
		cfg:        cfg,
		logger:     logger.With(observability.SessionID(id), observability.RemoteAddr(addr)),
		outbox:     NewOutbox(id, 0),
		writerDone: make(chan struct{}),
		name:       cfg.DefaultName,
		gridSize:   cfg.DefaultGridSize,
	}
	go s.writeLoop()
	return s
}

// ID returns the session's uuid.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the client's transport address.
func (s *Session) RemoteAddr() string { return s.addr }

// Name returns the current display name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// GridSize returns the most recently requested grid size.
func (s *Session) GridSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gridSize
}

// Symbol returns the assigned symbol, or board.Empty before matchmaking.
func (s *Session) Symbol() board.Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbol
}

// Room returns the session's current room, or nil.
func (s *Session) Room() *room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Connected reports whether the session has not been closed.
func (s *Session) Connected() bool {
	return !s.closed.Load()
}

// Send queues one protocol line. A client that cannot keep up is treated as a
// transport failure and closed.
func (s *Session) Send(line string) {
	if s.closed.Load() {
		return
	}
	if err := s.outbox.Push(line); err != nil {
		s.logger.Warn("dropping slow client", zap.Error(err))
		s.Close()
	}
}

// Close stops the session. Queued lines are flushed before the transport is
// closed, which in turn ends the read loop in Run.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.outbox.Close()
	})
}

// Done is closed once the writer has flushed and the transport is closed.
func (s *Session) Done() <-chan struct{} {
	return s.writerDone
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	failed := false
	for line := range s.outbox.Lines() {
		if failed {
			continue
		}
		if err := s.conn.WriteLine(line); err != nil {
			s.logger.Debug("write failed", zap.Error(err))
			failed = true
			s.Close()
		}
	}
	_ = s.conn.Close()
}

// Run greets the client and processes lines until the connection fails or is
// closed. On return the session has left its room exactly once.
//
// Postcondition: Returns nil on a clean disconnect, or the read error otherwise.
func (s *Session) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.leave()
		s.Close()
		s.logger.Info("session closed", zap.Duration("duration", time.Since(start)))
	}()

	s.Send(protocol.Message("Connected to Tic-Tac-Toe Server"))
	s.Send(protocol.Message("Waiting for opponent..."))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.conn.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && line != "" && !s.closed.Load() {
				s.Handle(line)
			}
			if errors.Is(err, io.EOF) || s.closed.Load() {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		s.Handle(line)
	}
}

// Handle dispatches one inbound line.
func (s *Session) Handle(line string) {
	cmd, err := protocol.Parse(line)
	s.logger.Debug("command", zap.Stringer("kind", cmd.Kind), zap.String("line", line))

	switch cmd.Kind {
	case protocol.KindName:
		if cmd.Text != "" {
			s.mu.Lock()
			s.name = cmd.Text
			s.mu.Unlock()
		}

	case protocol.KindGridSize:
		if err != nil {
			s.Send(protocol.Message(err.Error()))
			return
		}
		s.handleGridSize(cmd.Size)

	case protocol.KindMove:
		if err != nil {
			s.Send(protocol.Message(err.Error()))
			return
		}
		if r := s.Room(); r != nil {
			if err := r.Move(s, cmd.Row, cmd.Col); err != nil {
				s.logger.Debug("move rejected", zap.Error(err))
			}
		}

	case protocol.KindChat:
		if strings.TrimSpace(cmd.Text) == "" {
			return
		}
		if r := s.Room(); r != nil {
			_ = r.Chat(s, cmd.Text)
		}

	case protocol.KindRematch:
		if r := s.Room(); r != nil {
			_ = r.Rematch(s)
		}

	case protocol.KindPing:
		s.Send(protocol.Pong)
	}
}

func (s *Session) handleGridSize(size int) {
	if !s.cfg.Supports(size) {
		s.Send(protocol.Message(protocol.ErrInvalidGridSize.Error()))
		return
	}

	s.mu.Lock()
	if s.room != nil {
		s.mu.Unlock()
		s.Send(protocol.Message("Already in a game"))
		return
	}
	s.gridSize = size
	s.mu.Unlock()

	r, symbol, err := s.games.Join(s, size)
	if err != nil {
		s.logger.Warn("matchmaking failed", observability.GridSize(size), zap.Error(err))
		s.Send(protocol.GridSizeMismatch)
		s.Close()
		return
	}

	s.mu.Lock()
	s.room = r
	if s.symbol == board.Empty {
		s.symbol = symbol
	}
	s.mu.Unlock()

	s.logger.Info("joined room",
		observability.RoomID(r.ID()),
		observability.GridSize(size),
		observability.Symbol(symbol.String()),
	)
}

// leave detaches the session from its room. Only the first call has any effect.
func (s *Session) leave() {
	s.leaveOnce.Do(func() {
		s.mu.Lock()
		r := s.room
		s.room = nil
		s.mu.Unlock()

		if r != nil {
			s.games.Leave(r, s)
		}
	})
}
