package signaling

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one peer's WebSocket connection to the signaling server.
// Send may be called from any goroutine; Next must only be called from one.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial connects to the signaling server at url, e.g. ws://127.0.0.1:3536/.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling server: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Send writes a signaling message, guarded by a mutex.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Next blocks until the next message arrives or the connection fails.
func (c *Client) Next() (Message, error) {
	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Close closes the underlying WebSocket. It unblocks a pending Next.
func (c *Client) Close() error {
	return c.conn.Close()
}
