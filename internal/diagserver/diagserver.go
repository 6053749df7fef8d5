// Package diagserver broadcasts per-phase compiler progress events (a
// session ID, a phase name, and a short free-form detail string) to
// connected browser clients over WebSocket — one goroutine
// per connection reading control frames, a single broadcast call
// fanning a JSON event out to every live client. Grounded directly in
// internal/network/websocket_server.go's per-connection
// reader-goroutine + broadcast-to-all-clients shape.
package diagserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is one broadcast frame: a compilation session's progress at a
// point in the pipeline.
type Event struct {
	SessionID string `json:"sessionId"`
	Phase     string `json:"phase"`
	Detail    string `json:"detail"`
}

type client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// Server is a live diagnostics broadcaster: an HTTP handler that
// upgrades to WebSocket, plus a thread-safe client registry.
type Server struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[string]*client
	nextID   int
}

// New builds a Server accepting WebSocket upgrades from any origin —
// this is a local developer diagnostics feed, not a public endpoint.
func New() *Server {
	return &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[string]*client),
	}
}

// ServeHTTP upgrades the connection and starts its reader goroutine.
// Clients aren't expected to send anything meaningful back; the reader
// loop exists to notice disconnects and drain control frames.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.nextID++
	id := conn.RemoteAddr().String()
	c := &client{conn: conn}
	s.clients[id] = c
	s.mu.Unlock()

	go s.readLoop(id, c)
}

func (s *Server) readLoop(id string, c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			return
		}
	}
}

// Broadcast sends evt as a JSON text frame to every connected client.
// Errors writing to an individual client mark it closed rather than
// aborting the broadcast to the rest.
func (s *Server) Broadcast(evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	var lastErr error
	for _, c := range clients {
		c.mu.Lock()
		if !c.closed {
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				lastErr = err
				c.closed = true
			}
		}
		c.mu.Unlock()
	}
	return lastErr
}

// ClientCount reports how many connections are currently tracked.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		c.mu.Lock()
		c.closed = true
		c.conn.Close()
		c.mu.Unlock()
		delete(s.clients, id)
	}
}
