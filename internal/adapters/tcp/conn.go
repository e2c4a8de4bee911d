package tcp

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/dkeye/parley/internal/protocol"
)

const writeTimeout = 5 * time.Second

var errConnClosed = errors.New("connection closed")

// controlConn implements core.ControlConn over a TCP connection. Writes are
// serialized by a mutex and bounded by a deadline so a hung peer turns into
// a write error instead of a stuck goroutine.
type controlConn struct {
	conn net.Conn

	mu     sync.Mutex
	closed bool
}

func newControlConn(conn net.Conn) *controlConn {
	return &controlConn{conn: conn}
}

func (c *controlConn) TrySend(p protocol.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return protocol.WriteFrame(c.conn, p)
}

func (c *controlConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}
