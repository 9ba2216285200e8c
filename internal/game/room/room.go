// Package room implements the two-player game room state machine and the
// registry that matches sessions into rooms by grid size.
//
// Lock ordering: the Registry lock is only ever taken without a Room lock
// held. Matchmaking reads room occupancy through an atomic claim mask, so a
// Room lock is never acquired while the Registry lock is held either.
package room

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/game/board"
	"github.com/cory-johannsen/tictactoe/internal/observability"
	"github.com/cory-johannsen/tictactoe/internal/protocol"
)

// Rule violations. The error text is what the offending client sees in a MESSAGE line.
var (
	ErrGameNotActive   = errors.New("Game is not active")
	ErrNotYourTurn     = errors.New("Not your turn!")
	ErrInvalidPosition = errors.New("Invalid position!")
	ErrCellOccupied    = errors.New("Cell already occupied!")
	ErrGameInProgress  = errors.New("Game still in progress")
)

// Matchmaking and membership errors.
var (
	ErrGridSizeMismatch = errors.New("grid size mismatch")
	ErrRoomClosed       = errors.New("room closed")
	ErrSlotTaken        = errors.New("slot already taken")
	ErrNotOccupant      = errors.New("not an occupant of this room")
)

// Occupant is the room's view of a connected session.
type Occupant interface {
	// ID identifies the occupant in logs.
	ID() string
	// Name is the display name used in chat and the start banner.
	Name() string
	// Send delivers one protocol line. It must not block indefinitely and must
	// not call back into the room.
	Send(line string)
	// Connected reports whether the occupant's transport is still open.
	Connected() bool
	// Close tears down the occupant's transport.
	Close()
}

// State is the room lifecycle state.
type State int

const (
	StateWaiting State = iota
	StateActive
	StateOver
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateOver:
		return "over"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Claim mask bits. A claim is taken during matchmaking before the occupant
// attaches, so a slot counts as occupied from the moment it is handed out.
const (
	claimX      uint32 = 1 << 0
	claimO      uint32 = 1 << 1
	claimClosed uint32 = 1 << 2
)

var symbols = [2]board.Cell{board.X, board.O}

func slotIndex(symbol board.Cell) int {
	if symbol == board.O {
		return 1
	}
	return 0
}

func claimBit(symbol board.Cell) uint32 {
	if symbol == board.O {
		return claimO
	}
	return claimX
}

// Room is one two-player game. All mutation happens under mu.
type Room struct {
	id     int64
	size   int
	logger *zap.Logger

	claims atomic.Uint32

	mu      sync.Mutex
	board   *board.Board
	slots   [2]Occupant
	turn    board.Cell
	state   State
	scores  [2]int
	rematch [2]bool
}

func newRoom(id int64, size int, logger *zap.Logger) *Room {
	r := &Room{
		id:     id,
		size:   size,
		logger: logger.With(observability.RoomID(id), observability.GridSize(size)),
		board:  board.New(size),
		turn:   board.X,
		state:  StateWaiting,
	}
	r.logger.Info("room created")
	return r
}

// ID returns the room's registry-assigned identifier.
func (r *Room) ID() int64 { return r.id }

// GridSize returns N.
func (r *Room) GridSize() int { return r.size }

// claim reserves the first free slot, X before O.
//
// Postcondition: Returns (symbol, true) on success; (board.Empty, false) if
// the room is full or closed.
func (r *Room) claim() (board.Cell, bool) {
	for {
		mask := r.claims.Load()
		if mask&claimClosed != 0 {
			return board.Empty, false
		}
		var symbol board.Cell
		switch {
		case mask&claimX == 0:
			symbol = board.X
		case mask&claimO == 0:
			symbol = board.O
		default:
			return board.Empty, false
		}
		if r.claims.CompareAndSwap(mask, mask|claimBit(symbol)) {
			return symbol, true
		}
	}
}

// release frees the slot for symbol. When no claims remain the room is
// closed for good and release reports true.
func (r *Room) release(symbol board.Cell) bool {
	for {
		mask := r.claims.Load()
		if mask&claimClosed != 0 {
			return false
		}
		next := mask &^ claimBit(symbol)
		if next == 0 {
			next = claimClosed
		}
		if r.claims.CompareAndSwap(mask, next) {
			return next == claimClosed
		}
	}
}

// slotOf returns the slot index held by occ, or -1.
func (r *Room) slotOf(occ Occupant) int {
	for i, s := range r.slots {
		if s != nil && s == occ {
			return i
		}
	}
	return -1
}

func (r *Room) broadcast(line string) {
	for _, s := range r.slots {
		if s != nil && s.Connected() {
			s.Send(line)
		}
	}
}

func (r *Room) sendTo(i int, line string) {
	if s := r.slots[i]; s != nil && s.Connected() {
		s.Send(line)
	}
}

func (r *Room) sendScores() {
	r.broadcast(protocol.Scores(r.scores[0], r.scores[1]))
}

// join attaches occ to the slot previously claimed for symbol. When both
// slots are filled the game starts.
//
// Postcondition: On error the claim is released; the bool reports whether
// that release left the room empty.
func (r *Room) join(occ Occupant, size int, symbol board.Cell) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	i := slotIndex(symbol)
	switch {
	case r.state == StateClosed:
		err = ErrRoomClosed
	case size != r.size:
		err = ErrGridSizeMismatch
	case r.slots[i] != nil:
		err = ErrSlotTaken
	}
	if err != nil {
		r.logger.Warn("join rejected",
			observability.SessionID(occ.ID()),
			zap.Int("requested_size", size),
			zap.Error(err),
		)
		empty := r.release(symbol)
		if empty {
			r.state = StateClosed
		}
		return empty, err
	}

	r.slots[i] = occ
	occ.Send(protocol.Symbol(symbol.String()))
	r.logger.Info("player joined",
		observability.SessionID(occ.ID()),
		observability.Symbol(symbol.String()),
	)

	if r.slots[0] != nil && r.slots[1] != nil {
		r.start()
	} else {
		r.state = StateWaiting
	}
	return false, nil
}

// start resets the board and opens a new round. Scores are kept.
//
// Precondition: r.mu is held and both slots are filled.
func (r *Room) start() {
	r.board.Reset()
	r.turn = board.X
	r.rematch = [2]bool{}
	r.state = StateActive

	r.broadcast(protocol.Message(fmt.Sprintf("Game started! %s (X) vs %s (O)",
		r.slots[0].Name(), r.slots[1].Name())))
	r.sendScores()
	r.sendTo(0, protocol.YourTurn)
	r.sendTo(1, protocol.WaitTurn)

	r.logger.Info("game started",
		zap.Int("score_x", r.scores[0]),
		zap.Int("score_o", r.scores[1]),
	)
}

// Move applies a placement by occ. Rule violations are reported to occ as a
// MESSAGE and returned; they never change room state.
func (r *Room) Move(occ Occupant, row, col int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.slotOf(occ)
	if i < 0 {
		return ErrNotOccupant
	}
	symbol := symbols[i]

	var err error
	switch {
	case r.state != StateActive:
		err = ErrGameNotActive
	case symbol != r.turn:
		err = ErrNotYourTurn
	case !r.board.InBounds(row, col):
		err = ErrInvalidPosition
	case r.board.At(row, col) != board.Empty:
		err = ErrCellOccupied
	}
	if err != nil {
		occ.Send(protocol.Message(err.Error()))
		return err
	}

	r.board.Place(row, col, symbol)
	r.broadcast(protocol.Update(row, col, symbol.String()))
	r.logger.Debug("move",
		observability.Symbol(symbol.String()),
		zap.Int("row", row),
		zap.Int("col", col),
	)

	if r.board.CheckWin(symbol) {
		r.scores[i]++
		r.sendScores()
		r.broadcast(protocol.Win(symbol.String()))
		r.state = StateOver
		r.logger.Info("game won",
			observability.Symbol(symbol.String()),
			zap.String("board", r.board.String()),
		)
		return nil
	}

	if r.board.IsFull() {
		r.broadcast(protocol.Draw)
		r.state = StateOver
		r.logger.Info("game drawn")
		return nil
	}

	r.turn = symbol.Other()
	next := slotIndex(r.turn)
	r.sendTo(next, protocol.YourTurn)
	r.sendTo(1-next, protocol.WaitTurn)
	return nil
}

// Chat relays text from occ to both occupants regardless of room state.
func (r *Room) Chat(occ Occupant, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.slotOf(occ)
	if i < 0 {
		return ErrNotOccupant
	}
	r.broadcast(protocol.Chat(occ.Name(), symbols[i].String(), text))
	return nil
}

// Rematch records occ's vote. Once both occupants have voted the votes are
// cleared and a new round starts.
func (r *Room) Rematch(occ Occupant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.slotOf(occ)
	if i < 0 {
		return ErrNotOccupant
	}
	if r.state == StateActive {
		occ.Send(protocol.Message(ErrGameInProgress.Error()))
		return ErrGameInProgress
	}

	r.rematch[i] = true
	r.sendTo(1-i, protocol.Message("Opponent wants a rematch!"))
	r.logger.Info("rematch requested", observability.Symbol(symbols[i].String()))

	if r.rematch[0] && r.rematch[1] && r.slots[0] != nil && r.slots[1] != nil {
		r.broadcast(protocol.Message("Starting new game..."))
		r.broadcast(protocol.RematchStart)
		r.start()
	}
	return nil
}

// leave vacates occ's slot and tells a remaining occupant the game is over.
//
// Postcondition: Returns true if the room is now empty and closed; the caller
// must then drop it from the registry.
func (r *Room) leave(occ Occupant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.slotOf(occ)
	if i < 0 {
		return false
	}
	r.slots[i] = nil
	r.rematch[i] = false

	if other := r.slots[1-i]; other != nil && other.Connected() {
		other.Send(protocol.Message("Opponent disconnected"))
		other.Send(protocol.GameOver("Opponent left the game"))
		other.Send(protocol.WaitTurn)
	}
	r.state = StateWaiting

	empty := r.release(symbols[i])
	if empty {
		r.state = StateClosed
	}
	r.logger.Info("player left",
		observability.SessionID(occ.ID()),
		observability.Symbol(symbols[i].String()),
		zap.Bool("empty", empty),
	)
	return empty
}

// shutdown notifies occupants that the server is stopping and closes the
// room. It returns the detached occupants so the caller can close them
// without holding the room lock.
func (r *Room) shutdown() []Occupant {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.broadcast(protocol.Message("Server is shutting down"))
	r.claims.Store(claimClosed)
	r.state = StateClosed

	var occs []Occupant
	for i, s := range r.slots {
		if s != nil {
			occs = append(occs, s)
			r.slots[i] = nil
		}
	}
	return occs
}

// Info is a point-in-time snapshot of a room.
type Info struct {
	ID        int64
	GridSize  int
	State     State
	Turn      board.Cell
	Occupants []string
	ScoreX    int
	ScoreO    int
}

// Info returns a snapshot of the room.
func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := Info{
		ID:       r.id,
		GridSize: r.size,
		State:    r.state,
		Turn:     r.turn,
		ScoreX:   r.scores[0],
		ScoreO:   r.scores[1],
	}
	for _, s := range r.slots {
		if s != nil {
			info.Occupants = append(info.Occupants, s.ID())
		}
	}
	return info
}

// Cell returns the board cell at (row, col), or board.Empty when out of range.
func (r *Room) Cell(row, col int) board.Cell {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.board.InBounds(row, col) {
		return board.Empty
	}
	return r.board.At(row, col)
}
