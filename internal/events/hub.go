// Package events streams alert and audit activity to connected
// dashboard clients over websockets. The hub fans every published
// event out to all clients; slow clients are dropped rather than
// allowed to stall the feed.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event names published through the hub.
const (
	EventAlertCreated = "alert.created"
	EventAuditLogged  = "audit.logged"
)

// Envelope is the wire frame for every feed message.
type Envelope struct {
	Event     string    `json:"event"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	running bool
	quit    chan struct{}

	logger *slog.Logger
	now    func() time.Time
}

// NewHub creates a hub. Call Start before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "events.hub")),
		now:        time.Now,
	}
}

// Start launches the hub loop. Starting twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop shuts the hub down and disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)
}

// Publish serializes the event and queues it for every connected
// client. Events published while the broadcast queue is full are
// dropped; the feed is advisory, not a durable stream.
func (h *Hub) Publish(event string, payload any) {
	data, err := json.Marshal(Envelope{
		Event:     event,
		Payload:   payload,
		Timestamp: h.now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("event", event), slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.quit:
	default:
		h.logger.Warn("event feed backlogged, dropping event", slog.String("event", event))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("event hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("feed client connected",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("feed client disconnected",
				slog.String("client_id", client.id),
				slog.Duration("connected_for", time.Since(client.connectedAt)),
				slog.Int("total_clients", count))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Buffer full, the client is too slow to keep.
					delete(h.clients, client)
					close(client.send)
					h.logger.Warn("dropped slow feed client", slog.String("client_id", client.id))
				}
			}
			h.mu.Unlock()
		}
	}
}
