package web

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Channel is the outbound half of a session's websocket. Writes are
// serialized; gorilla permits only one concurrent writer per conn.
type Channel struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	logger *slog.Logger
}

func newChannel(conn *websocket.Conn, logger *slog.Logger) *Channel {
	return &Channel{conn: conn, logger: logger}
}

// Send writes an envelope to the client. Delivery is best effort: a
// write failure marks the channel closed and further sends are dropped.
func (c *Channel) Send(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := c.conn.WriteJSON(env); err != nil {
		c.logger.Warn("websocket write failed", "type", env.Type, "error", err)
		c.closed = true
	}
}

// Close tears down the underlying connection.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
}
