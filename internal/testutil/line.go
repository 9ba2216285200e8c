// Package testutil provides helpers for end-to-end tests against a running
// game listener.
package testutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// DefaultTimeout is the read timeout used by Expect and Next.
const DefaultTimeout = 2 * time.Second

// LineClient is a line-protocol test client speaking to a real listener.
type LineClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      testing.TB
}

// NewLineClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected LineClient or fails the test.
func NewLineClient(t testing.TB, addr string) *LineClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return &LineClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		t:      t,
	}
}

// ReadLine reads one line with the terminator removed.
//
// Postcondition: Returns the line and nil, or "" and the read error.
func (c *LineClient) ReadLine(timeout time.Duration) (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

// Next returns the next line or fails the test.
func (c *LineClient) Next() string {
	c.t.Helper()
	line, err := c.ReadLine(DefaultTimeout)
	if err != nil {
		c.t.Fatalf("reading line: %v", err)
	}
	return line
}

// Expect reads lines until one equals want. It returns the lines read before
// the match.
//
// Postcondition: Returns the skipped lines, or fails the test on timeout or EOF.
func (c *LineClient) Expect(want string) []string {
	c.t.Helper()
	var skipped []string
	deadline := time.Now().Add(DefaultTimeout)
	for {
		line, err := c.ReadLine(time.Until(deadline))
		if err != nil {
			c.t.Fatalf("waiting for %q: got %q, error: %v", want, skipped, err)
		}
		if line == want {
			return skipped
		}
		skipped = append(skipped, line)
	}
}

// ExpectSequence asserts that the next lines are exactly want, in order.
func (c *LineClient) ExpectSequence(want ...string) {
	c.t.Helper()
	for i, w := range want {
		if got := c.Next(); got != w {
			c.t.Fatalf("line %d: got %q, want %q", i, got, w)
		}
	}
}

// ExpectClosed reads until the server closes the connection and returns the
// lines received first.
func (c *LineClient) ExpectClosed() []string {
	c.t.Helper()
	var lines []string
	deadline := time.Now().Add(DefaultTimeout)
	for {
		line, err := c.ReadLine(time.Until(deadline))
		if errors.Is(err, io.EOF) {
			return lines
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.t.Fatalf("connection still open after %q", lines)
			}
			return lines
		}
		lines = append(lines, line)
	}
}

// Send writes a line of text to the server, appending "\n".
//
// Precondition: text should not contain trailing newline characters.
func (c *LineClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\n", text); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// Close closes the underlying connection.
func (c *LineClient) Close() {
	c.conn.Close()
}
