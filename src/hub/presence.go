package hub

import (
	"sync"

	"github.com/orchestra-mcp/presence/src/registry"
	"github.com/orchestra-mcp/presence/src/types"
)

// presence emits global arrival and departure events. Only the creation
// and removal of a user record are announced; extra tabs and partial
// disconnects stay silent and never take a presence lock.
//
// mu orders roster snapshots. send is acquired before mu is released so
// frames reach every connection in snapshot order while the next
// announcement snapshots in parallel.
type presence struct {
	mu   sync.Mutex
	send sync.Mutex
	hub  *Hub
}

func (p *presence) arrive(c *Client, userID, name string) (registry.User, bool, error) {
	u, created, err := p.hub.registry.Identify(c.ID, userID, name)
	if err != nil || !created {
		return u, created, err
	}
	p.announce(types.EventUserConnected, types.UserRef{ID: u.ID, Name: u.Name})
	return u, true, nil
}

func (p *presence) depart(connID string) (registry.Drop, bool) {
	d, ok := p.hub.registry.DropConnection(connID)
	if ok && d.WasLast {
		p.announce(types.EventUserDisconnected, types.UserRef{ID: d.User.ID, Name: d.User.Name})
	}
	return d, ok
}

func (p *presence) announce(event string, user types.UserRef) {
	p.mu.Lock()
	r := p.hub.roster()
	frame, err := types.Encode(event, types.Presence{
		User:       user,
		TotalUsers: r.TotalUsers,
		Users:      r.Users,
	})
	if err != nil {
		p.mu.Unlock()
		p.hub.logger.Error().Err(err).Str("event", event).Msg("encode presence")
		return
	}
	p.send.Lock()
	p.mu.Unlock()
	n := p.hub.broadcastAll(frame)
	p.send.Unlock()

	p.hub.metrics.RecordDelivery(event, n)
	p.hub.logger.Info().
		Str("event", event).
		Str("user_id", user.ID).
		Int("total_users", r.TotalUsers).
		Msg("presence changed")
}

// roster snapshots the online users.
func (h *Hub) roster() types.Roster {
	users := h.registry.Users()
	entries := make([]types.RosterEntry, len(users))
	for i, u := range users {
		entries[i] = types.RosterEntry{ID: u.ID, Name: u.Name, Connections: u.Connections}
	}
	return types.Roster{TotalUsers: len(entries), Users: entries}
}

// broadcastAll queues a frame to every open connection, identified or not.
func (h *Hub) broadcastAll(frame []byte) int {
	n := 0
	for _, c := range h.snapshotClients() {
		if c.Send(frame) {
			n++
		}
	}
	return n
}
