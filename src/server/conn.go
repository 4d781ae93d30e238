package server

import (
	"time"

	"github.com/fasthttp/websocket"
)

// wsConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
// Any inbound frame or pong extends the read deadline by pongWait.
type wsConn struct {
	conn      *websocket.Conn
	pongWait  time.Duration
	writeWait time.Duration
}

func newWSConn(conn *websocket.Conn, maxMessage int64, pongWait, writeWait time.Duration) *wsConn {
	c := &wsConn{conn: conn, pongWait: pongWait, writeWait: writeWait}
	if maxMessage > 0 {
		conn.SetReadLimit(maxMessage)
	}
	c.extend()
	conn.SetPongHandler(func(string) error {
		c.extend()
		return nil
	})
	return c
}

func (c *wsConn) extend() {
	if c.pongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		c.extend()
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	if c.writeWait > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Ping() error {
	wait := c.writeWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wait))
}

func (c *wsConn) Close() error { return c.conn.Close() }
