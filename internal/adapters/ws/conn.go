// Package ws is the live-connection adapter: it owns the WebSocket
// transport and translates wire events into dispatcher calls.
package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sageteck/tuneup-relay/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// chatConn wraps one *websocket.Conn behind a buffered send channel.
// It implements core.ClientConnection; the write pump drains send.
type chatConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newChatConn(conn *websocket.Conn) *chatConn {
	return &chatConn{
		conn: conn,
		send: make(chan core.Frame, 64),
	}
}

// TrySend queues a frame without blocking. A full buffer means the client
// is not draining; the frame is dropped and the router counts it.
func (c *chatConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *chatConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}
