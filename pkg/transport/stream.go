package transport

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blospray-dev/blospray/pkg/protocol"
)

// StreamConn is a Conn over a byte stream such as a TCP socket.
type StreamConn struct {
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewStreamConn wraps conn. The caller must not read from conn afterwards.
func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{
		conn: conn,
		r:    bufio.NewReaderSize(conn, 64*1024),
	}
}

// Readable implements Conn using a read deadline and a one byte peek.
func (c *StreamConn) Readable(timeout time.Duration) (bool, error) {
	if c.closed.Load() {
		return false, readError(ErrClosed)
	}
	if c.r.Buffered() > 0 {
		return true, nil
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, readError(err)
	}
	_, err := c.r.Peek(1)
	// Clear the deadline so body reads block normally.
	c.conn.SetReadDeadline(time.Time{})

	if err == nil {
		return true, nil
	}
	if isTimeout(err) {
		return false, nil
	}
	return false, readError(err)
}

// ReceiveMessage implements Conn.
func (c *StreamConn) ReceiveMessage(m protocol.Message) error {
	return receiveMessage(c.r, m)
}

// SendMessage implements Conn.
func (c *StreamConn) SendMessage(m protocol.Message) error {
	return c.SendBytes(protocol.EncodeFrame(protocol.Marshal(m)))
}

// ReceiveBytes implements Conn.
func (c *StreamConn) ReceiveBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, readError(err)
	}
	return buf, nil
}

// SendBytes implements Conn.
func (c *StreamConn) SendBytes(b []byte) error {
	if c.closed.Load() {
		return writeError(ErrClosed)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// net.Conn.Write loops internally until all bytes are written or it fails.
	if _, err := c.conn.Write(b); err != nil {
		return writeError(err)
	}
	return nil
}

// RemoteAddr implements Conn.
func (c *StreamConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Close implements Conn.
func (c *StreamConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
