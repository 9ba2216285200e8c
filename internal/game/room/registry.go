package room

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/game/board"
	"github.com/cory-johannsen/tictactoe/internal/observability"
)

// Registry holds every live room in creation order and performs first-fit
// matchmaking by grid size. All methods are safe for concurrent use.
type Registry struct {
	logger *zap.Logger

	mu     sync.Mutex
	rooms  []*Room
	nextID int64
}

// NewRegistry creates an empty Registry.
//
// Precondition: logger must be non-nil.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logger}
}

// Join places occ into the first room of the requested size with a free
// slot, or into a new room when none exists.
//
// Postcondition: Returns the room and the symbol assigned to occ, or
// ErrGridSizeMismatch / ErrRoomClosed when the chosen room changed between
// matching and attaching. The caller is expected to drop the client then.
func (g *Registry) Join(occ Occupant, size int) (*Room, board.Cell, error) {
	r, symbol := g.match(size)

	empty, err := r.join(occ, size, symbol)
	if err != nil {
		if empty {
			g.remove(r)
		}
		return nil, board.Empty, err
	}
	return r, symbol, nil
}

// match claims a slot under the registry lock. Only the atomic claim mask of
// each room is touched, never a room lock.
func (g *Registry) match(size int) (*Room, board.Cell) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, r := range g.rooms {
		if r.size != size {
			continue
		}
		if symbol, ok := r.claim(); ok {
			return r, symbol
		}
	}

	g.nextID++
	r := newRoom(g.nextID, size, g.logger)
	symbol, _ := r.claim()
	g.rooms = append(g.rooms, r)
	return r, symbol
}

// Leave vacates occ's slot in r and drops r from the registry once empty.
func (g *Registry) Leave(r *Room, occ Occupant) {
	if r.leave(occ) {
		g.remove(r)
	}
}

func (g *Registry) remove(r *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, candidate := range g.rooms {
		if candidate == r {
			g.rooms = append(g.rooms[:i], g.rooms[i+1:]...)
			g.logger.Info("room removed",
				observability.RoomID(r.id),
				zap.Int("rooms", len(g.rooms)),
			)
			return
		}
	}
}

// Shutdown tells every room occupant the server is stopping, empties the
// registry, and closes every occupant.
//
// Postcondition: The registry holds no rooms.
func (g *Registry) Shutdown() {
	g.mu.Lock()
	rooms := g.rooms
	g.rooms = nil
	g.mu.Unlock()

	closed := 0
	for _, r := range rooms {
		for _, occ := range r.shutdown() {
			occ.Close()
			closed++
		}
	}
	g.logger.Info("registry shut down",
		zap.Int("rooms", len(rooms)),
		zap.Int("occupants_closed", closed),
	)
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Rooms returns a snapshot of every live room in registry order.
func (g *Registry) Rooms() []Info {
	g.mu.Lock()
	rooms := make([]*Room, len(g.rooms))
	copy(rooms, g.rooms)
	g.mu.Unlock()

	infos := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, r.Info())
	}
	return infos
}
