package http11

import (
	"net"
	"sync/atomic"

	"github.com/google/uuid"
)

// Connection owns the socket a request worker is reading/writing and
// the metadata the scheduler and response writer need about it
// (spec.md §3). It is created by the listener on accept and destroyed
// when the worker that owns it returns or shutdown cancellation closes
// it (spec.md §5).
type Connection struct {
	ID     string
	Conn   net.Conn
	Scheme string // "http" or "https"; TLS termination is an external collaborator

	requestCount atomic.Int32
	alive        atomic.Bool
}

// NewConnection wraps a freshly accepted net.Conn.
func NewConnection(conn net.Conn, scheme string) *Connection {
	c := &Connection{ID: uuid.NewString(), Conn: conn, Scheme: scheme}
	c.alive.Store(true)
	return c
}

// Peer returns the remote address of the connection.
func (c *Connection) Peer() string {
	if c.Conn == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}

// RequestCount returns how many requests have been served on this
// connection so far, used by the keep-alive decision in spec.md §4.4.
func (c *Connection) RequestCount() int32 { return c.requestCount.Load() }

// IncrementRequestCount records that another request was read.
func (c *Connection) IncrementRequestCount() { c.requestCount.Add(1) }

// Alive reports the connection's liveness flag.
func (c *Connection) Alive() bool { return c.alive.Load() }

// MarkDead flips the liveness flag; the scheduler checks this after
// body draining fails (spec.md §4.4 step 11).
func (c *Connection) MarkDead() { c.alive.Store(false) }

// Close closes the underlying socket and marks the connection dead.
// Closing a socket mid-read during shutdown is expected, not an error
// surfaced to observers (spec.md §7).
func (c *Connection) Close() error {
	c.alive.Store(false)
	if c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}
