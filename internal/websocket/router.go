package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"aplgui/internal/events"
)

// ErrUnknownMessage is returned by Route for an unregistered message type
var ErrUnknownMessage = errors.New("unknown message type")

// HandlerFunc handles one client message
type HandlerFunc func(c *Client, msg ClientMessage) error

// Router maps client message types to handlers
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter creates a router with the built-in handlers. Subscriptions are
// accepted but every client receives every event.
func NewRouter() *Router {
	r := &Router{handlers: make(map[string]HandlerFunc)}
	r.Handle(MsgPing, handlePing)
	r.Handle(MsgSubscribe, noop)
	r.Handle(MsgUnsubscribe, noop)
	return r
}

// Handle registers fn for msgType, replacing any existing handler
func (r *Router) Handle(msgType string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = fn
}

// Route decodes raw and dispatches it
func (r *Router) Route(c *Client, raw []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	r.mu.RLock()
	fn, ok := r.handlers[msg.Type]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	return fn(c, msg)
}

func handlePing(c *Client, _ ClientMessage) error {
	return c.SendEvent(events.ConnectionEstablished{Pong: true})
}

func noop(*Client, ClientMessage) error { return nil }
