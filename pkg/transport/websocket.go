package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/protocol"
)

// WebSocketConn is a Conn over a WebSocket. Incoming binary messages are
// concatenated into one stream, so message boundaries carry no meaning.
type WebSocketConn struct {
	ws *websocket.Conn

	chunks chan []byte
	done   chan struct{}
	cur    []byte

	// rerr is written before chunks is closed and read only after.
	rerr error

	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewWebSocketConn wraps ws and starts its read goroutine.
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	c := &WebSocketConn{
		ws:     ws,
		chunks: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// readLoop feeds binary message payloads into chunks until the socket
// fails. gorilla connections cannot be read again after a read timeout, so
// readability is answered from the channel instead of a deadline.
func (c *WebSocketConn) readLoop() {
	defer close(c.chunks)
	for {
		typ, msg, err := c.ws.ReadMessage()
		if err != nil {
			c.rerr = err
			return
		}
		if typ != websocket.BinaryMessage || len(msg) == 0 {
			continue
		}
		select {
		case c.chunks <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *WebSocketConn) readErr() error {
	var ce *websocket.CloseError
	if c.rerr == nil || errors.As(c.rerr, &ce) {
		return blerrors.New("B201").Wrap(c.rerr)
	}
	return readError(c.rerr)
}

// Readable implements Conn.
func (c *WebSocketConn) Readable(timeout time.Duration) (bool, error) {
	if len(c.cur) > 0 {
		return true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-c.chunks:
		if !ok {
			return false, c.readErr()
		}
		c.cur = msg
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// Read implements io.Reader over the concatenated message stream.
func (c *WebSocketConn) Read(p []byte) (int, error) {
	for len(c.cur) == 0 {
		msg, ok := <-c.chunks
		if !ok {
			return 0, c.readErr()
		}
		c.cur = msg
	}
	n := copy(p, c.cur)
	c.cur = c.cur[n:]
	return n, nil
}

// ReceiveMessage implements Conn.
func (c *WebSocketConn) ReceiveMessage(m protocol.Message) error {
	return receiveMessage(c, m)
}

// SendMessage implements Conn.
func (c *WebSocketConn) SendMessage(m protocol.Message) error {
	return c.SendBytes(protocol.EncodeFrame(protocol.Marshal(m)))
}

// ReceiveBytes implements Conn.
func (c *WebSocketConn) ReceiveBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	for off := 0; off < n; {
		k, err := c.Read(buf[off:])
		if err != nil {
			return nil, err
		}
		off += k
	}
	return buf, nil
}

// SendBytes implements Conn.
func (c *WebSocketConn) SendBytes(b []byte) error {
	if c.closed.Load() {
		return writeError(ErrClosed)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return writeError(err)
	}
	return nil
}

// RemoteAddr implements Conn.
func (c *WebSocketConn) RemoteAddr() string {
	if addr := c.ws.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Close implements Conn.
func (c *WebSocketConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.writeMu.Lock()
	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return c.ws.Close()
}
