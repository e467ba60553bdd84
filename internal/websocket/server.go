package websocket

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"aplgui/internal/events"
	"aplgui/internal/logging"
)

// DefaultSendBuffer is the per-client queue length
const DefaultSendBuffer = 256

// Options configures a Server
type Options struct {
	Version string
	// AllowedOrigins limits browser origins; empty or "*" allows any
	AllowedOrigins []string
	SendBuffer     int
	Logger         *slog.Logger
}

// Server accepts websocket clients and broadcasts events to them
type Server struct {
	version  string
	buffer   int
	router   *Router
	upgrader websocket.Upgrader
	logger   *slog.Logger

	clients   map[string]*Client
	clientsMu sync.Mutex
}

// NewServer creates a websocket server
func NewServer(opts Options) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	s := &Server{
		version: opts.Version,
		buffer:  opts.SendBuffer,
		router:  NewRouter(),
		logger:  logging.OrDiscard(opts.Logger),
		clients: make(map[string]*Client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Router returns the client message router
func (s *Server) Router() *Router {
	return s.router
}

// Handler returns the HTTP handler that upgrades connections
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWebSocket)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(uuid.New().String(), conn, s.buffer)

	// The greeting is queued before the client can receive broadcasts.
	if err := client.SendEvent(events.ConnectionEstablished{
		ClientID:      client.ID,
		ServerVersion: s.version,
	}); err != nil {
		s.logger.Warn("websocket greeting failed", "client", client.ID, "error", err)
		conn.Close()
		return
	}

	s.clientsMu.Lock()
	s.clients[client.ID] = client
	s.clientsMu.Unlock()
	s.logger.Debug("client connected", "client", client.ID)

	go client.WritePump()
	s.readPump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		s.remove(client)
		client.Conn.Close()
		s.logger.Debug("client disconnected", "client", client.ID)
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", "client", client.ID, "error", err)
			}
			return
		}
		if err := s.router.Route(client, message); err != nil {
			s.logger.Warn("client message ignored", "client", client.ID, "error", err)
		}
	}
}

// Broadcast encodes ev once and queues it for every client. Closed clients
// and clients whose buffer is full are dropped.
func (s *Server) Broadcast(ev events.Event) {
	data, err := events.Encode(ev, time.Now())
	if err != nil {
		s.logger.Error("encode event", "type", ev.Type(), "error", err)
		return
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for id, client := range s.clients {
		if err := client.Enqueue(data); err != nil {
			s.logger.Warn("dropping client", "client", id, "error", err)
			delete(s.clients, id)
			client.Close()
		}
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

// Close disconnects every client
func (s *Server) Close() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for id, client := range s.clients {
		client.Close()
		delete(s.clients, id)
	}
}

func (s *Server) remove(client *Client) {
	s.clientsMu.Lock()
	delete(s.clients, client.ID)
	s.clientsMu.Unlock()
	client.Close()
}
