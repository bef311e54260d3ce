package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla connection to the transport's Conn interface.
// Writes are mutex-serialized; gorilla allows one concurrent writer only.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func dialWebsocket(ctx context.Context, rawURL string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

func (c *wsConn) Read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
