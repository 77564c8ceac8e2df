package websocket

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fortuna/diamond/internal/backfill"
	"github.com/fortuna/diamond/internal/logging"
)

// Hub maintains the set of active clients and fans job events out to them.
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	broadcast  chan backfill.Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	totalConnections atomic.Int64
	totalMessages    atomic.Int64

	log *logging.Logger
}

func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan backfill.Event, 1000),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.Component("ws-hub"),
	}
}

// Run is the hub's main loop. It closes every client when ctx ends; after
// that Register and Unregister return immediately.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			close(h.done)
			return
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case ev := <-h.broadcast:
			h.broadcastEvent(ev)
		}
	}
}

// Register adds c. A client arriving after shutdown has its send channel
// closed so its write pump exits.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues ev for every subscriber. It never blocks the caller; a
// full buffer drops the event.
func (h *Hub) Broadcast(ev backfill.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.log.Warn("broadcast buffer full, dropping event", "job_id", ev.JobID, "type", ev.Type)
	}
}

func (h *Hub) registerClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[c] = true
	h.totalConnections.Add(1)
	h.log.Info("client connected", "client_id", c.ID, "total", len(h.clients))
}

func (h *Hub) unregisterClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.log.Info("client disconnected", "client_id", c.ID, "total", len(h.clients))
	}
}

func (h *Hub) broadcastEvent(ev backfill.Event) {
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	msg := jobEvent(ev)
	sent := 0
	for _, c := range clients {
		if !c.Wants(ev.JobID) {
			continue
		}
		if c.TrySend(msg) {
			sent++
			continue
		}
		// Too slow to keep up.
		h.log.Warn("client buffer full, disconnecting", "client_id", c.ID)
		go h.Unregister(c)
	}
	if sent > 0 {
		h.totalMessages.Add(1)
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Metrics() map[string]any {
	return map[string]any{
		"active_clients":     h.ClientCount(),
		"total_connections":  h.totalConnections.Load(),
		"total_messages":     h.totalMessages.Load(),
		"broadcast_capacity": cap(h.broadcast),
		"broadcast_usage":    len(h.broadcast),
	}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.log.Info("shutting down hub", "clients", len(h.clients))
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}
