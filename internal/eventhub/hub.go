// Package eventhub is the single ordered queue between event producers
// (file monitors, the process supervisor) and the broadcasters.
package eventhub

import (
	"context"
	"log/slog"
	"sync"

	"aplgui/internal/events"
	"aplgui/internal/logging"
)

// Broadcaster delivers an event to connected clients
type Broadcaster interface {
	Broadcast(ev events.Event)
}

// BroadcasterFunc adapts a function to Broadcaster
type BroadcasterFunc func(ev events.Event)

func (f BroadcasterFunc) Broadcast(ev events.Event) { f(ev) }

// DefaultQueueSize is the number of pending batches Publish accepts before blocking
const DefaultQueueSize = 1024

// Hub fans events out to every attached Broadcaster in publish order. A
// batch passed to one Publish call is never interleaved with another.
type Hub struct {
	queue  chan []events.Event
	done   chan struct{}
	logger *slog.Logger

	mu           sync.RWMutex
	broadcasters []Broadcaster

	closeOnce sync.Once
}

// New creates a Hub with room for size pending batches
func New(size int, logger *slog.Logger) *Hub {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Hub{
		queue:  make(chan []events.Event, size),
		done:   make(chan struct{}),
		logger: logging.OrDiscard(logger),
	}
}

// Attach adds a broadcaster. Events published before Attach are not replayed.
func (h *Hub) Attach(b Broadcaster) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcasters = append(h.broadcasters, b)
}

// Publish queues evs as one contiguous batch. It blocks while the queue is
// full and drops the batch once the hub is closed.
func (h *Hub) Publish(evs ...events.Event) {
	if len(evs) == 0 {
		return
	}
	select {
	case h.queue <- evs:
	case <-h.done:
	}
}

// Run drains the queue until ctx is done or Close is called
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case batch := <-h.queue:
			h.deliver(batch)
		case <-ctx.Done():
			return
		case <-h.done:
			return
		}
	}
}

// Close stops Run and makes further Publish calls no-ops
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) deliver(batch []events.Event) {
	h.mu.RLock()
	targets := h.broadcasters
	h.mu.RUnlock()

	for _, ev := range batch {
		h.logger.Debug("event", "type", ev.Type())
		for _, b := range targets {
			b.Broadcast(ev)
		}
	}
}

// EmitAplStarted announces a new supervised run
func (h *Hub) EmitAplStarted(goal, sessionID string) {
	h.Publish(events.AplStarted{Goal: goal, SessionID: sessionID})
}

// EmitAplOutput relays one chunk of child output
func (h *Hub) EmitAplOutput(stream events.Stream, data string) {
	h.Publish(events.AplOutput{Stream: stream, Data: data})
}

// EmitAplStopped announces the end of a supervised run
func (h *Hub) EmitAplStopped(reason events.StopReason, summary string) {
	h.Publish(events.AplStopped{Reason: reason, Summary: summary})
}

// EmitAplError reports a supervisor failure
func (h *Hub) EmitAplError(err error, fatal bool) {
	h.Publish(events.AplError{Error: err.Error(), Fatal: fatal})
}

// EmitWatcherError reports a file watcher failure for source
func (h *Hub) EmitWatcherError(source string, err error) {
	h.Publish(events.Error{
		Code:    events.CodeWatcherError,
		Message: err.Error(),
		Details: map[string]string{"source": source},
	})
}
