package ws

import (
	"sync"

	"messaging-service/internal/models"
)

// Hub maintains the set of registered connections and per-conversation room
// membership. All mutation happens under the mutex; broadcasts copy the
// audience under a read lock and deliver outside it, so no socket write ever
// runs while the lock is held.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[int]map[string]*Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*Conn),
		rooms: make(map[int]map[string]*Conn),
	}
}

// Register adds a connection to the global set.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
}

// Unregister removes a connection from the global set and every room it
// joined. Safe to call for a connection that was never registered.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.ID)
	for convID, room := range h.rooms {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, convID)
		}
	}
}

// Join subscribes the connection to a conversation room. Authorization
// against the persisted conversation happens in the gateway before this is
// called.
func (h *Hub) Join(conversationID int, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[string]*Conn)
	}
	h.rooms[conversationID][c.ID] = c
}

// Leave unsubscribes the connection from a room. Never errors, even when
// the connection is not a member.
func (h *Hub) Leave(conversationID int, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// InRoom reports whether the connection is subscribed to the room.
func (h *Hub) InRoom(conversationID int, connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][connID]
	return ok
}

// Broadcast delivers an event to every connection subscribed to the
// conversation, except the excluded connection id when non-empty.
func (h *Hub) Broadcast(conversationID int, ev models.ServerEvent, excludeConnID string) {
	h.mu.RLock()
	audience := make([]*Conn, 0, len(h.rooms[conversationID]))
	for _, c := range h.rooms[conversationID] {
		if c.ID != excludeConnID {
			audience = append(audience, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range audience {
		c.Send(ev)
	}
}

// BroadcastAll delivers an event to every registered connection. Used for
// presence transitions.
func (h *Hub) BroadcastAll(ev models.ServerEvent) {
	h.mu.RLock()
	audience := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		audience = append(audience, c)
	}
	h.mu.RUnlock()

	for _, c := range audience {
		c.Send(ev)
	}
}
