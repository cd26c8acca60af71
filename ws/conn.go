package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"verba.town/wire"
)

const closeWriteTimeout = time.Second

// clientConn wraps a websocket connection as the session's outbound
// channel. Writes are serialized; close happens at most once.
type clientConn struct {
	conn *websocket.Conn

	mu   sync.Mutex
	once sync.Once
}

func newClientConn(conn *websocket.Conn) *clientConn {
	return &clientConn{conn: conn}
}

func (c *clientConn) Send(msg wire.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *clientConn) Close(code int, reason string) error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(closeWriteTimeout),
		)
		err = c.conn.Close()
	})
	return err
}
