package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"aplgui/internal/events"
)

var (
	ErrClientBufferFull = errors.New("client send buffer full")
	ErrClientClosed     = errors.New("client closed")
)

const writeWait = 10 * time.Second

// Client is one connected websocket peer
type Client struct {
	ID   string
	Conn *websocket.Conn

	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient creates a client with room for buffer pending messages
func NewClient(id string, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		ID:   id,
		Conn: conn,
		send: make(chan []byte, buffer),
	}
}

// Enqueue queues an encoded message without blocking
func (c *Client) Enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientBufferFull
	}
}

// SendEvent encodes ev and queues it for this client only
func (c *Client) SendEvent(ev events.Event) error {
	data, err := events.Encode(ev, time.Now())
	if err != nil {
		return err
	}
	return c.Enqueue(data)
}

// WritePump writes queued messages until the client is closed
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for message := range c.send {
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Closed reports whether Close has been called
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
