package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/tictactoe/internal/game/room"
)

func newSession(t testing.TB) *Session {
	logger := zaptest.NewLogger(t)
	s := New(newFakeConn(), room.NewRegistry(logger), gameConfig(), logger)
	t.Cleanup(s.Close)
	return s
}

func TestManager_Add(t *testing.T) {
	m := NewManager()
	s := newSession(t)
	require.NoError(t, m.Add(s))
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestManager_AddDuplicate(t *testing.T) {
	m := NewManager()
	s := newSession(t)
	require.NoError(t, m.Add(s))
	err := m.Add(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestManager_Remove(t *testing.T) {
	m := NewManager()
	s := newSession(t)
	require.NoError(t, m.Add(s))
	require.NoError(t, m.Remove(s.ID()))
	assert.Equal(t, 0, m.Count())

	_, ok := m.Get(s.ID())
	assert.False(t, ok)
	assert.Error(t, m.Remove(s.ID()))
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager()
	a := newSession(t)
	b := newSession(t)
	require.NoError(t, m.Add(a))
	require.NoError(t, m.Add(b))

	assert.Equal(t, 2, m.CloseAll())
	assert.False(t, a.Connected())
	assert.False(t, b.Connected())
}

func TestManager_ConcurrentAddRemove(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := newSession(t)
			if err := m.Add(s); err != nil {
				t.Errorf("add: %v", err)
				return
			}
			if err := m.Remove(s.ID()); err != nil {
				t.Errorf("remove: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.Count())
}

// Property: Count equals adds minus removes.
func TestPropertyManagerCount(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := NewManager()
		n := rapid.IntRange(0, 10).Draw(rt, "n")
		k := rapid.IntRange(0, n).Draw(rt, "k")

		sessions := make([]*Session, n)
		for i := range sessions {
			sessions[i] = newSession(t)
			if err := m.Add(sessions[i]); err != nil {
				rt.Fatalf("add: %v", err)
			}
		}
		for i := 0; i < k; i++ {
			if err := m.Remove(sessions[i].ID()); err != nil {
				rt.Fatalf("remove: %v", err)
			}
		}
		if m.Count() != n-k {
			rt.Fatalf("count %d, want %d", m.Count(), n-k)
		}
	})
}
