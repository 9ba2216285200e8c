package tcp

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/game/session"
)

// echoHandler echoes lines back to the client.
type echoHandler struct {
	sessionCount atomic.Int32
}

func (h *echoHandler) HandleSession(_ context.Context, conn session.Conn) error {
	h.sessionCount.Add(1)
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return err
		}
		if line == "quit" {
			_ = conn.WriteLine("bye")
			return nil
		}
		_ = conn.WriteLine("echo: " + line)
	}
}

// stuckHandler never returns until its connection is closed under it.
type stuckHandler struct{}

func (stuckHandler) HandleSession(ctx context.Context, conn session.Conn) error {
	for {
		if _, err := conn.ReadLine(); err != nil {
			return err
		}
	}
}

func testConfig() config.ListenerConfig {
	return config.ListenerConfig{
		Host:          "127.0.0.1",
		Port:          0,
		WriteTimeout:  5 * time.Second,
		ShutdownGrace: 2 * time.Second,
	}
}

// startAcceptor serves acc on a loopback port and returns its address.
func startAcceptor(t *testing.T, acc *Acceptor) (string, <-chan error) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- acc.ListenAndServe()
	}()

	deadline := time.After(2 * time.Second)
	for {
		if acc.IsRunning() && acc.Addr() != "" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("acceptor did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	return acc.Addr(), errCh
}

func TestAcceptorStartAndStop(t *testing.T) {
	handler := &echoHandler{}
	acc := NewAcceptor(testConfig(), handler, zaptest.NewLogger(t))
	addr, errCh := startAcceptor(t, acc)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	r := bufio.NewReader(conn)

	_, err = conn.Write([]byte("hello\r\n"))
	require.NoError(t, err)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "echo: hello\n", line)

	_, _ = conn.Write([]byte("quit\n"))
	line, _ = r.ReadString('\n')
	assert.Equal(t, "bye\n", line)
	conn.Close()

	acc.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acceptor did not stop in time")
	}

	assert.Equal(t, int32(1), handler.sessionCount.Load())
	assert.False(t, acc.IsRunning())
}

func TestAcceptorMultipleClients(t *testing.T) {
	handler := &echoHandler{}
	acc := NewAcceptor(testConfig(), handler, zaptest.NewLogger(t))
	addr, _ := startAcceptor(t, acc)

	const numClients = 3
	conns := make([]net.Conn, numClients)
	for i := 0; i < numClients; i++ {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		require.NoError(t, err)
		conns[i] = conn
	}

	for _, conn := range conns {
		_, _ = conn.Write([]byte("quit\n"))
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, _ := bufio.NewReader(conn).ReadString('\n')
		assert.Equal(t, "bye\n", line)
		conn.Close()
	}

	acc.Stop()
	assert.Equal(t, int32(numClients), handler.sessionCount.Load())
	assert.Equal(t, 0, acc.Connections())
}

func TestAcceptorStopForcesLingeringConnections(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownGrace = 50 * time.Millisecond
	acc := NewAcceptor(cfg, stuckHandler{}, zaptest.NewLogger(t))
	addr, _ := startAcceptor(t, acc)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return acc.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		acc.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestAcceptorListenError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig()
	cfg.Port = busy.Addr().(*net.TCPAddr).Port
	acc := NewAcceptor(cfg, &echoHandler{}, zaptest.NewLogger(t))
	assert.Error(t, acc.ListenAndServe())
}

func TestAcceptorStopBeforeServe(t *testing.T) {
	acc := NewAcceptor(testConfig(), &echoHandler{}, zaptest.NewLogger(t))
	acc.Stop()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.NoError(t, acc.Serve(l))
}

// countingHandler tracks workers that are inside HandleSession.
type countingHandler struct {
	active atomic.Int32
}

func (h *countingHandler) HandleSession(_ context.Context, conn session.Conn) error {
	h.active.Add(1)
	defer h.active.Add(-1)
	_, err := conn.ReadLine()
	return err
}

func TestAcceptorStopWaitsForEveryAcceptedWorker(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownGrace = 100 * time.Millisecond
	handler := &countingHandler{}
	acc := NewAcceptor(cfg, handler, zaptest.NewLogger(t))
	addr, _ := startAcceptor(t, acc)

	var dialers sync.WaitGroup
	for i := 0; i < 20; i++ {
		dialers.Add(1)
		go func() {
			defer dialers.Done()
			conn, err := net.DialTimeout("tcp", addr, time.Second)
			if err == nil {
				t.Cleanup(func() { conn.Close() })
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)

	acc.Stop()
	assert.Equal(t, int32(0), handler.active.Load())
	assert.Equal(t, 0, acc.Connections())
	dialers.Wait()
}

// unkillableHandler ignores its connection closing until released.
type unkillableHandler struct {
	release chan struct{}
}

func (h unkillableHandler) HandleSession(context.Context, session.Conn) error {
	<-h.release
	return nil
}

func TestAcceptorStopAbandonsStragglers(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownGrace = 50 * time.Millisecond
	handler := unkillableHandler{release: make(chan struct{})}
	acc := NewAcceptor(cfg, handler, zaptest.NewLogger(t))
	addr, _ := startAcceptor(t, acc)

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return acc.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		acc.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop waited on a worker past both grace periods")
	}

	close(handler.release)
	require.Eventually(t, func() bool { return acc.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}
