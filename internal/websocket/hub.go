// Package websocket pushes ingest job events to connected clients. The hub
// fans events out; clients may watch the whole stream or a single job.
package websocket

import (
	"context"
	"sync"

	"github.com/mediascribe/ingest/internal/events"
)

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast channel for job events
	broadcast chan events.Event

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan events.Event, 64),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled. All
// client channels are closed on exit.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(ev) {
					continue
				}
				select {
				case client.send <- ev:
				default:
					// Client's buffer is full, close the connection
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for delivery to every interested client. It
// never blocks; with the hub loop stopped events are discarded.
func (h *Hub) Broadcast(ev events.Event) {
	select {
	case h.broadcast <- ev:
	default:
	}
}

// TotalClients returns the number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
