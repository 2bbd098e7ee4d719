// Package bridge connects the coordinator to the page scanner and popup
// sockets.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the write side of a peer socket.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// WSConn serializes writes to a websocket. gorilla connections allow one
// concurrent writer only.
type WSConn struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWSConn(conn *websocket.Conn, writeTimeout time.Duration) *WSConn {
	return &WSConn{conn: conn, writeTimeout: writeTimeout}
}

func (c *WSConn) WriteJSON(v any) error {
	if c == nil || c.conn == nil {
		return errors.New("websocket connection is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteJSON(v)
}

// Ping sends a ping control frame. Browsers answer pings but never send them,
// so the server side has to keep idle sockets alive.
func (c *WSConn) Ping() error {
	if c == nil || c.conn == nil {
		return errors.New("websocket connection is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// KeepAlive pings every interval until ctx is done or a ping fails.
func (c *WSConn) KeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				return
			}
		}
	}
}

func (c *WSConn) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
