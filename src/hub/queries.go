package hub

import (
	"github.com/orchestra-mcp/presence/src/registry"
	"github.com/orchestra-mcp/presence/src/rooms"
	"github.com/orchestra-mcp/presence/src/types"
)

// ConnectedClients returns a list of connected client IDs.
func (h *Hub) ConnectedClients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientInfo returns info for a connected client, or nil.
func (h *Hub) ClientInfo(clientID string) *types.ClientInfo {
	c := h.client(clientID)
	if c == nil {
		return nil
	}
	info := c.Info()
	return &info
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Roster returns the online users.
func (h *Hub) Roster() types.Roster { return h.roster() }

// User returns a snapshot of an online user.
func (h *Hub) User(userID string) (registry.User, bool) {
	return h.registry.Lookup(userID)
}

// UserCount returns the number of online users.
func (h *Hub) UserCount() int { return h.registry.Count() }

// Rooms returns live rooms with their member counts.
func (h *Hub) Rooms() []rooms.Summary { return h.rooms.Rooms() }

// RoomMembers returns the user ids subscribed to a room.
func (h *Hub) RoomMembers(key types.RoomKey) []string { return h.rooms.Members(key) }

// BridgeAvailable reports whether a connected bridge is attached.
func (h *Hub) BridgeAvailable() bool {
	h.bridgeMu.RLock()
	defer h.bridgeMu.RUnlock()
	return h.bridge != nil && h.bridge.Available()
}
