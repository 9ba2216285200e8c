package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWinLengthTable(t *testing.T) {
	assert.Equal(t, 3, WinLength(3))
	assert.Equal(t, 4, WinLength(5))
	assert.Equal(t, 5, WinLength(7))
	assert.Equal(t, 5, WinLength(9))
	assert.Equal(t, 5, WinLength(11))
}

func TestCellStringAndOther(t *testing.T) {
	assert.Equal(t, "X", X.String())
	assert.Equal(t, "O", O.String())
	assert.Equal(t, " ", Empty.String())
	assert.Equal(t, O, X.Other())
	assert.Equal(t, X, O.Other())
	assert.Equal(t, Empty, Empty.Other())
}

func TestNewBoardIsEmpty(t *testing.T) {
	b := New(5)
	assert.Equal(t, 5, b.Size())
	for r := 0; r < 5; r++ {
		for c := 0; c < 5; c++ {
			assert.Equal(t, Empty, b.At(r, c))
		}
	}
	assert.False(t, b.IsFull())
	assert.False(t, b.CheckWin(X))
	assert.False(t, b.CheckWin(O))
}

func TestInBounds(t *testing.T) {
	b := New(3)
	assert.True(t, b.InBounds(0, 0))
	assert.True(t, b.InBounds(2, 2))
	assert.False(t, b.InBounds(-1, 0))
	assert.False(t, b.InBounds(0, 3))
	assert.False(t, b.InBounds(3, 0))
}

func TestCheckWin_Row(t *testing.T) {
	b := New(3)
	b.Place(0, 0, X)
	b.Place(0, 1, X)
	assert.False(t, b.CheckWin(X))
	b.Place(0, 2, X)
	assert.True(t, b.CheckWin(X))
	assert.False(t, b.CheckWin(O))
}

func TestCheckWin_Column(t *testing.T) {
	b := New(5)
	for r := 1; r <= 4; r++ {
		b.Place(r, 3, O)
	}
	assert.True(t, b.CheckWin(O))
}

func TestCheckWin_Diagonal(t *testing.T) {
	b := New(7)
	for i := 0; i < 5; i++ {
		b.Place(i+2, i+1, X)
	}
	assert.True(t, b.CheckWin(X))
}

func TestCheckWin_AntiDiagonal(t *testing.T) {
	b := New(5)
	b.Place(0, 4, O)
	b.Place(1, 3, O)
	b.Place(2, 2, O)
	assert.False(t, b.CheckWin(O))
	b.Place(3, 1, O)
	assert.True(t, b.CheckWin(O))
}

func TestCheckWin_ShortRunOnLargeBoard(t *testing.T) {
	b := New(7)
	for c := 0; c < 4; c++ {
		b.Place(6, c, X)
	}
	assert.False(t, b.CheckWin(X), "four in a row is not enough on 7x7")
	b.Place(6, 4, X)
	assert.True(t, b.CheckWin(X))
}

func TestCheckWin_BrokenRun(t *testing.T) {
	b := New(5)
	b.Place(2, 0, X)
	b.Place(2, 1, X)
	b.Place(2, 2, O)
	b.Place(2, 3, X)
	b.Place(2, 4, X)
	assert.False(t, b.CheckWin(X))
}

func TestCheckWin_EmptySymbol(t *testing.T) {
	b := New(3)
	assert.False(t, b.CheckWin(Empty))
}

func TestIsFullAndReset(t *testing.T) {
	b := New(3)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			b.Place(r, c, X)
		}
	}
	assert.True(t, b.IsFull())
	b.Reset()
	assert.False(t, b.IsFull())
	assert.Equal(t, Empty, b.At(1, 1))
	assert.Equal(t, 3, b.Size())
}

func TestString(t *testing.T) {
	b := New(3)
	b.Place(0, 0, X)
	b.Place(1, 1, O)
	assert.Equal(t, "X..\n.O.\n...", b.String())
}

// referenceWin counts consecutive cells along every line independently of CheckWin.
func referenceWin(b *Board, symbol Cell) bool {
	n := b.Size()
	k := WinLength(n)
	for _, d := range [][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}} {
		for r := 0; r < n; r++ {
			for c := 0; c < n; c++ {
				// Only start counting at the first cell of a line.
				pr, pc := r-d[0], c-d[1]
				if b.InBounds(pr, pc) {
					continue
				}
				run := 0
				for rr, cc := r, c; b.InBounds(rr, cc); rr, cc = rr+d[0], cc+d[1] {
					if b.At(rr, cc) == symbol {
						run++
						if run >= k {
							return true
						}
					} else {
						run = 0
					}
				}
			}
		}
	}
	return false
}

// Property: along any sequence of alternating legal moves, CheckWin agrees
// with an independent contiguous-run count for both symbols.
func TestPropertyCheckWinMatchesReference(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.SampledFrom([]int{3, 5, 7}).Draw(t, "n")
		b := New(n)
		free := make([]int, n*n)
		for i := range free {
			free[i] = i
		}
		turn := X
		moves := rapid.IntRange(0, n*n).Draw(t, "moves")
		for m := 0; m < moves; m++ {
			idx := rapid.IntRange(0, len(free)-1).Draw(t, "cell")
			cell := free[idx]
			free = append(free[:idx], free[idx+1:]...)
			b.Place(cell/n, cell%n, turn)

			require.Equal(t, referenceWin(b, X), b.CheckWin(X), "board:\n%s", b)
			require.Equal(t, referenceWin(b, O), b.CheckWin(O), "board:\n%s", b)
			turn = turn.Other()
		}
		assert.Equal(t, len(free) == 0, b.IsFull())
	})
}

// Property: Reset always yields a board with no winner and no full state.
func TestPropertyResetClears(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.SampledFrom([]int{3, 5, 7}).Draw(t, "n")
		b := New(n)
		for r := 0; r < n; r++ {
			for c := 0; c < n; c++ {
				b.Place(r, c, rapid.SampledFrom([]Cell{X, O}).Draw(t, "cell"))
			}
		}
		b.Reset()
		assert.False(t, b.IsFull())
		assert.False(t, b.CheckWin(X))
		assert.False(t, b.CheckWin(O))
	})
}
