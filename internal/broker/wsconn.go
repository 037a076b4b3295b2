package broker

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds every frame write so a stalled peer cannot hang a sender.
const writeWait = 10 * time.Second

// WSConn adapts a gorilla websocket to Conn. gorilla allows one concurrent
// writer, so every write goes through mu. Reads stay with the owning
// connection loop.
type WSConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// NewWSConn wraps an upgraded websocket.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// Write implements Conn.
func (c *WSConn) Write(mode Mode, data []byte) error {
	msgType := websocket.TextMessage
	if mode == ModeBinary {
		msgType = websocket.BinaryMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(msgType, data)
}

// Ping sends a ping control frame.
func (c *WSConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close implements Conn. The close frame is best effort; the socket is
// always released. Later calls return nil.
func (c *WSConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(code, truncateReason(reason))
	werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.mu.Unlock()

	cerr := c.conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return werr
	}
	return cerr
}

// truncateReason keeps a close reason inside the 123-byte control frame limit.
func truncateReason(reason string) string {
	const max = 123
	if len(reason) <= max {
		return reason
	}
	return reason[:max]
}
