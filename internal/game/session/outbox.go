package session

import (
	"fmt"
	"sync"
)

// Outbox is a bounded queue of outbound protocol lines drained by a single
// writer goroutine, so a room never blocks on a client's socket.
type Outbox struct {
	id     string
	lines  chan string
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox holding up to size lines.
//
// Postcondition: Returns an Outbox with an open channel; size <= 0 selects 64.
func NewOutbox(id string, size int) *Outbox {
	if size <= 0 {
		size = 64
	}
	return &Outbox{
		id:    id,
		lines: make(chan string, size),
	}
}

// Push enqueues a line without blocking.
//
// Postcondition: The line is queued, or an error is returned if the outbox is closed or full.
func (o *Outbox) Push(line string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.id)
	}
	select {
	case o.lines <- line:
		return nil
	default:
		return fmt.Errorf("outbox %s buffer full", o.id)
	}
}

// Lines returns the channel the writer drains. It is closed by Close after
// all queued lines have been received.
func (o *Outbox) Lines() <-chan string {
	return o.lines
}

// Close stops accepting lines. Lines already queued are still delivered.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.lines)
	}
}

// IsClosed reports whether Close has been called.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
