package relay

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub tracks connected clients by user ID. One connection per user;
// a newer registration for the same ID displaces the older one.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// add registers a client, closing any previous connection for the same
// user.
func (h *Hub) add(c *Client) {
	h.mu.Lock()
	prev := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if prev != nil {
		log.Info().Str("user_id", c.userID).Msg("displacing previous connection")
		prev.close()
	}
}

// remove unregisters a client only if it is still the current one for
// its user ID.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
}

// lookup returns the connected client for userID, nil if offline.
func (h *Hub) lookup(userID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID]
}

// Count reports the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
