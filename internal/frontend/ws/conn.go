package ws

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxFrameSize bounds a single inbound text frame.
const maxFrameSize = 4096

// Conn adapts a WebSocket connection to the line protocol: every text frame
// carries exactly one line.
type Conn struct {
	socket       *websocket.Conn
	mu           sync.Mutex
	readTimeout  time.Duration
	writeTimeout time.Duration
	closeOnce    sync.Once
}

// NewConn wraps an upgraded WebSocket connection. A zero timeout disables that deadline.
//
// Precondition: socket must be a valid, open WebSocket connection.
func NewConn(socket *websocket.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	socket.SetReadLimit(maxFrameSize)
	return &Conn{
		socket:       socket,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ReadLine returns the payload of the next text frame with any trailing line
// terminator removed. Binary frames are ignored.
//
// Postcondition: A normal close from the peer is reported as io.EOF.
func (c *Conn) ReadLine() (string, error) {
	for {
		if c.readTimeout > 0 {
			_ = c.socket.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		kind, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		if kind != websocket.TextMessage {
			continue
		}
		line := strings.TrimSuffix(string(data), "\n")
		return strings.TrimSuffix(line, "\r"), nil
	}
}

// WriteLine sends text as one text frame.
func (c *Conn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.socket.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.socket.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close sends a normal close frame and closes the underlying connection.
//
// Postcondition: The connection is closed; repeated calls return nil.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.socket.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.socket.RemoteAddr()
}
