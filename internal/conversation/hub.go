// ABOUTME: In-memory fan-out of encoded events to connected dashboard web clients
// ABOUTME: Per-client buffered queues, non-blocking publish, and per-client session interest

package conversation

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// clientBufferSize is the outbound queue per web client.
	clientBufferSize = 64
)

type hubClient struct {
	send     chan []byte
	sessions map[string]struct{}
}

// Hub tracks connected web clients and delivers events to them. Publishing
// never blocks: a client whose queue is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*hubClient
	closed  bool
	logger  *slog.Logger

	// OnCountChange, when set, is called with the client count after every
	// register and unregister.
	OnCountChange func(n int)
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]*hubClient),
		logger:  logger.With("component", "hub"),
	}
}

// Register adds a client and returns the channel its writer drains. The
// client is removed and the channel closed when ctx is cancelled or
// Unregister is called.
func (h *Hub) Register(ctx context.Context, clientID string) <-chan []byte {
	ch := make(chan []byte, clientBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	if old, ok := h.clients[clientID]; ok {
		close(old.send)
	}
	h.clients[clientID] = &hubClient{send: ch, sessions: make(map[string]struct{})}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("client registered", "client_id", clientID, "clients", n)
	h.countChanged(n)

	go func() {
		<-ctx.Done()
		h.unregister(clientID, ch)
	}()

	return ch
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(clientID string) {
	h.unregister(clientID, nil)
}

// unregister removes clientID only if it still owns ch (any channel when ch
// is nil), so a stale cleanup cannot evict a re-registered client.
func (h *Hub) unregister(clientID string, ch chan []byte) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if !ok || (ch != nil && c.send != ch) {
		h.mu.Unlock()
		return
	}
	delete(h.clients, clientID)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("client unregistered", "client_id", clientID, "clients", n)
	h.countChanged(n)
}

func (h *Hub) countChanged(n int) {
	if h.OnCountChange != nil {
		h.OnCountChange(n)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client.
func (h *Hub) Broadcast(event string, data any) {
	h.publish(event, data, func(string, *hubClient) bool { return true })
}

// BroadcastExcept sends an event to every client but one.
func (h *Hub) BroadcastExcept(excludeID, event string, data any) {
	h.publish(event, data, func(id string, _ *hubClient) bool { return id != excludeID })
}

// SendTo sends an event to a single client. It reports whether the client
// was connected and had room for it.
func (h *Hub) SendTo(clientID, event string, data any) bool {
	return h.publish(event, data, func(id string, _ *hubClient) bool { return id == clientID }) > 0
}

// PublishSession sends an event to clients subscribed to sessionKey.
func (h *Hub) PublishSession(sessionKey, event string, data any) {
	h.publish(event, data, func(_ string, c *hubClient) bool {
		_, ok := c.sessions[sessionKey]
		return ok
	})
}

// SubscribeSession records that a client wants events for sessionKey.
func (h *Hub) SubscribeSession(clientID, sessionKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok && sessionKey != "" {
		c.sessions[sessionKey] = struct{}{}
	}
}

// UnsubscribeSession drops a client's interest in sessionKey.
func (h *Hub) UnsubscribeSession(clientID, sessionKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		delete(c.sessions, sessionKey)
	}
}

// publish encodes once and delivers to every client matching keep. Sends
// happen under the read lock so a channel cannot be closed mid-send.
func (h *Hub) publish(event string, data any, keep func(id string, c *hubClient) bool) int {
	msg, err := Encode(event, data)
	if err != nil {
		h.logger.Error("failed to encode event", "event", event, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, c := range h.clients {
		if !keep(id, c) {
			continue
		}
		select {
		case c.send <- msg:
			delivered++
		default:
			h.logger.Debug("dropped event for slow client", "client_id", id, "event", event)
		}
	}
	return delivered
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.closed = true
	h.mu.Unlock()

	h.countChanged(0)
	h.logger.Debug("hub closed")
}
