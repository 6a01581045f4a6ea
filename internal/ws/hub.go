package ws

import (
	"sync"
)

// Hub tracks the live room info connections of every user.
type Hub struct {
	// Map of userID -> set of open connections
	conns map[string]map[*Connection]struct{}

	mu sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*Connection]struct{}),
	}
}

func (h *Hub) Join(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[c.userID]
	if !ok {
		set = make(map[*Connection]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Leave(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[c.userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID)
	}
}

func (h *Hub) Connections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

// DisconnectUser closes every connection of the user and returns how many were closed.
func (h *Hub) DisconnectUser(userID string) int {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	// Handle leaves the hub once the read fails
	for _, c := range conns {
		_ = c.ws.Close()
	}
	return len(conns)
}
