// Package board implements the N×N grid and its win/draw detection.
package board

import (
	"strings"
)

// Cell is the state of one grid square.
type Cell uint8

const (
	Empty Cell = iota
	X
	O
)

// String returns the protocol symbol for the cell: "X", "O", or " " for Empty.
func (c Cell) String() string {
	switch c {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return " "
	}
}

// Other returns the opposing symbol. Empty maps to Empty.
func (c Cell) Other() Cell {
	switch c {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

// WinLength returns the run length needed to win on an n×n board.
// The table is fixed game balance: 3 wins with 3, 5 with 4, anything else with 5.
func WinLength(n int) int {
	switch n {
	case 3:
		return 3
	case 5:
		return 4
	default:
		return 5
	}
}

// directions scanned by CheckWin: row, column, main diagonal, anti-diagonal.
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// Board is an N×N grid. It performs no rule checking of its own; the room
// that owns it validates every placement first.
type Board struct {
	size  int
	cells []Cell
}

// New returns an empty size×size board.
//
// Precondition: size must be >= 1.
func New(size int) *Board {
	return &Board{
		size:  size,
		cells: make([]Cell, size*size),
	}
}

// Size returns N.
func (b *Board) Size() int { return b.size }

// InBounds reports whether (row, col) lies on the board.
func (b *Board) InBounds(row, col int) bool {
	return row >= 0 && row < b.size && col >= 0 && col < b.size
}

// At returns the cell at (row, col).
//
// Precondition: InBounds(row, col).
func (b *Board) At(row, col int) Cell {
	return b.cells[row*b.size+col]
}

// Place writes symbol at (row, col).
//
// Precondition: InBounds(row, col) and At(row, col) == Empty.
func (b *Board) Place(row, col int, symbol Cell) {
	b.cells[row*b.size+col] = symbol
}

// CheckWin reports whether symbol occupies every cell of some horizontal,
// vertical, or diagonal run of WinLength(N) cells.
func (b *Board) CheckWin(symbol Cell) bool {
	if symbol == Empty {
		return false
	}
	n := b.size
	k := WinLength(n)
	if k > n {
		return false
	}
	for _, d := range directions {
		for row := 0; row < n; row++ {
			for col := 0; col < n; col++ {
				if b.runFrom(row, col, d[0], d[1], k, symbol) {
					return true
				}
			}
		}
	}
	return false
}

// runFrom reports whether the k cells starting at (row, col) stepping by
// (dr, dc) all lie on the board and hold symbol.
func (b *Board) runFrom(row, col, dr, dc, k int, symbol Cell) bool {
	endRow, endCol := row+dr*(k-1), col+dc*(k-1)
	if !b.InBounds(endRow, endCol) {
		return false
	}
	for i := 0; i < k; i++ {
		if b.At(row+dr*i, col+dc*i) != symbol {
			return false
		}
	}
	return true
}

// IsFull reports whether no empty cell remains.
func (b *Board) IsFull() bool {
	for _, c := range b.cells {
		if c == Empty {
			return false
		}
	}
	return true
}

// Reset clears every cell.
func (b *Board) Reset() {
	clear(b.cells)
}

// String renders the board one row per line with '.' for empty cells.
func (b *Board) String() string {
	var sb strings.Builder
	for row := 0; row < b.size; row++ {
		if row > 0 {
			sb.WriteByte('\n')
		}
		for col := 0; col < b.size; col++ {
			c := b.At(row, col)
			if c == Empty {
				sb.WriteByte('.')
				continue
			}
			sb.WriteString(c.String())
		}
	}
	return sb.String()
}
