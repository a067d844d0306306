package communication

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/NethermindEth/eternal-regression/core"
)

type WSEvent struct {
	Type    string `json:"type"`
	RunID   string `json:"run_id,omitempty"`
	Payload any    `json:"payload"`
}

const (
	EventRegressionStarted  = "REGRESSION_STARTED"
	EventRegressionEvent    = "REGRESSION_EVENT"
	EventRegressionFinished = "REGRESSION_FINISHED"
)

// Hub fans events out to every connected websocket client.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan WSEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub starts a hub. Close stops it and disconnects every client.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan WSEvent),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "remote", client.RemoteAddr().String())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(event); err != nil {
					h.logger.Warn("websocket write failed", "error", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast sends an event to all clients. It is a no-op once the hub is closed.
func (h *Hub) Broadcast(eventType, runID string, payload any) {
	select {
	case h.broadcast <- WSEvent{Type: eventType, RunID: runID, Payload: payload}:
	case <-h.done:
	}
}

// Publish implements Sink.
func (h *Hub) Publish(runID string, ev core.Event) error {
	h.Broadcast(EventRegressionEvent, runID, ev)
	return nil
}

// Register adds a client.
func (h *Hub) Register(conn *websocket.Conn) {
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
	}
}

// Unregister removes and closes a client.
func (h *Hub) Unregister(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
