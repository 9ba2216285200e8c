package session

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory Conn. Tests feed it input with send and read what
// the session wrote with next.
type fakeConn struct {
	in   chan string
	out  chan string
	done chan struct{}

	// gate, when non-nil, blocks every WriteLine until it is closed.
	gate chan struct{}

	// tail is returned together with io.EOF once in is closed, like an
	// unterminated final line.
	tail string

	once sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan string, 16),
		out:  make(chan string, 256),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) ReadLine() (string, error) {
	select {
	case line, ok := <-c.in:
		if !ok {
			tail := c.tail
			c.tail = ""
			return tail, io.EOF
		}
		return line, nil
	case <-c.done:
		return "", net.ErrClosed
	}
}

func (c *fakeConn) WriteLine(text string) error {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-c.done:
			return net.ErrClosed
		}
	}
	select {
	case <-c.done:
		return net.ErrClosed
	default:
	}
	c.out <- text
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *fakeConn) send(line string) { c.in <- line }

// hangup simulates the client closing its end.
func (c *fakeConn) hangup() { close(c.in) }

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// next returns the next line the session wrote.
func (c *fakeConn) next(t *testing.T) string {
	t.Helper()
	select {
	case line := <-c.out:
		return line
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for output")
		return ""
	}
}

// expect reads lines until want arrives, failing on timeout.
func (c *fakeConn) expect(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-c.out:
			if line == want {
				return
			}
		case <-deadline:
			require.FailNow(t, "timed out waiting for line", want)
			return
		}
	}
}
