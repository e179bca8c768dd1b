package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Local companion UI only, the server binds to loopback
		return true
	},
}

// Hub pushes player and queue state changes to connected UI clients.
type Hub struct {
	mu sync.Mutex
	// per-connection write locks, gorilla conns allow one writer at a time
	clients map[*websocket.Conn]*sync.Mutex

	// state builds the payload sent on connect and on every update
	state func() any
}

// NewHub creates a Hub. state must return a JSON-encodable snapshot of the
// current playback state.
func NewHub(state func() any) *Hub {
	if state == nil {
		state = func() any { return struct{}{} }
	}
	return &Hub{
		clients: make(map[*websocket.Conn]*sync.Mutex),
		state:   state,
	}
}

// HandleWS handles GET /ws. The connection is push-only; inbound frames are
// read and discarded to service control messages.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	wl := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = wl
	count := len(h.clients)
	h.mu.Unlock()
	slog.Debug("WebSocket client connected", "clients", count)

	// Sync the new client immediately
	h.send(conn, wl, h.state())

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
	slog.Debug("WebSocket client disconnected")
}

// Broadcast sends the current state snapshot to all connected clients.
// Clients that fail to accept the write are dropped.
func (h *Hub) Broadcast() {
	payload := h.state()

	h.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for c, wl := range h.clients {
		conns[c] = wl
	}
	h.mu.Unlock()

	for c, wl := range conns {
		if !h.send(c, wl, payload) {
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			_ = c.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) send(c *websocket.Conn, wl *sync.Mutex, payload any) bool {
	wl.Lock()
	defer wl.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.WriteJSON(payload); err != nil {
		slog.Debug("WebSocket write failed, dropping client", "error", err)
		return false
	}
	return true
}
