package tcp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// MaxLineLength bounds a single inbound line. Longer lines end the connection.
const MaxLineLength = 4096

// ErrLineTooLong is returned by ReadLine when a client sends more than
// MaxLineLength bytes without a newline.
var ErrLineTooLong = errors.New("line too long")

// Conn wraps a TCP connection with newline-delimited line reading and writing.
// Reads happen on one goroutine; writes are serialized.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	mu     sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps a raw TCP connection. A zero timeout disables that deadline.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for reading and writing.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, MaxLineLength),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ReadLine reads a single line of input. The terminator ("\n" or "\r\n") is
// stripped and nothing else is altered.
//
// Postcondition: Returns the next line, or an error (including io.EOF). A final
// line without a terminator is returned with io.EOF.
func (c *Conn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	raw, err := c.reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return "", ErrLineTooLong
	}
	line := bytes.TrimSuffix(bytes.TrimSuffix(raw, []byte("\n")), []byte("\r"))
	if err != nil {
		return string(line), err
	}
	return string(line), nil
}

// WriteLine sends text followed by "\n".
//
// Precondition: text should not contain newline characters.
// Postcondition: text + "\n" is written to the connection.
func (c *Conn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := fmt.Fprintf(c.raw, "%s\n", text); err != nil {
		return fmt.Errorf("writing line: %w", err)
	}
	return nil
}

// Close closes the underlying TCP connection.
//
// Postcondition: The connection is closed and no longer usable.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
