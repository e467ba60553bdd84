package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"aplgui/internal/events"
	"aplgui/internal/logging"
)

// DefaultReconnectDelay is the fixed wait between connection attempts
const DefaultReconnectDelay = 3 * time.Second

// Options configures a Client
type Options struct {
	// URL is the websocket endpoint, e.g. ws://localhost:3001/ws
	URL            string
	ReconnectDelay time.Duration
	// OnEvent is called after each event has been applied to the store
	OnEvent func(ev events.Event, at time.Time)
	Logger  *slog.Logger
}

// Client keeps a websocket connection open and feeds a Store
type Client struct {
	url    string
	delay  time.Duration
	store  *Store
	dialer *websocket.Dialer
	logger *slog.Logger
	now    func() time.Time

	onEvent func(events.Event, time.Time)
}

// NewClient creates a client applying events to store
func NewClient(store *Store, opts Options) *Client {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Client{
		url:     opts.URL,
		delay:   delay,
		store:   store,
		dialer:  websocket.DefaultDialer,
		logger:  logging.Component(logging.OrDiscard(opts.Logger), "consumer"),
		now:     time.Now,
		onEvent: opts.OnEvent,
	}
}

// Run connects and reads until ctx is done, reconnecting after every drop.
// Missed events are not replayed; the next state:update resynchronizes.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("connection lost, retrying", "url", c.url, "error", err, "delay", c.delay)

		t := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// session runs one connection until it fails or ctx ends
func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer c.store.SetConnected(false, c.now())

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.store.SetConnected(true, c.now())
	c.logger.Info("connected", "url", c.url)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, at, err := events.Decode(data)
		if err != nil {
			if errors.Is(err, events.ErrUnknownType) {
				c.logger.Debug("skipping unknown event", "error", err)
				continue
			}
			c.logger.Warn("bad event", "error", err)
			continue
		}
		c.store.Apply(ev, at)
		if c.onEvent != nil {
			c.onEvent(ev, at)
		}
	}
}

