package service

import (
	"errors"
	"fmt"
	"sort"

	"github.com/orchestra-mcp/presence/src/hub"
	"github.com/orchestra-mcp/presence/src/types"
	"github.com/rs/zerolog"
)

// ErrClientNotFound is returned when a connection id is unknown.
var ErrClientNotFound = errors.New("client not found")

// Info summarizes the server for the /ws/info route.
type Info struct {
	WebSocket bool   `json:"websocket"`
	Endpoint  string `json:"endpoint"`
	Clients   int    `json:"clients"`
	Users     int    `json:"users"`
	Rooms     int    `json:"rooms"`
	Bridge    bool   `json:"bridge"`
}

// Room describes one live room.
type Room struct {
	Room    string         `json:"room"`
	Kind    types.RoomKind `json:"kind"`
	ID      string         `json:"id"`
	Members int            `json:"members"`
}

// RoomList is the /ws/rooms response.
type RoomList struct {
	Rooms []Room `json:"rooms"`
	Count int    `json:"count"`
}

// ClientList is the /ws/clients response.
type ClientList struct {
	Clients []types.ClientInfo `json:"clients"`
	Count   int                `json:"count"`
}

// Service provides the read-only view of presence state for HTTP routes.
type Service struct {
	hub    *hub.Hub
	logger zerolog.Logger
}

// New creates a new service backed by the given hub.
func New(h *hub.Hub, logger zerolog.Logger) *Service {
	return &Service{hub: h, logger: logger.With().Str("component", "service").Logger()}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// Info returns connection, user and room counts.
func (s *Service) Info() Info {
	return Info{
		WebSocket: true,
		Endpoint:  "/ws",
		Clients:   s.hub.ClientCount(),
		Users:     s.hub.UserCount(),
		Rooms:     len(s.hub.Rooms()),
		Bridge:    s.hub.BridgeAvailable(),
	}
}

// Users returns the online roster.
func (s *Service) Users() types.Roster {
	return s.hub.Roster()
}

// Rooms returns every live room with its member count.
func (s *Service) Rooms() RoomList {
	summaries := s.hub.Rooms()
	out := RoomList{Rooms: make([]Room, 0, len(summaries)), Count: len(summaries)}
	for _, r := range summaries {
		out.Rooms = append(out.Rooms, Room{
			Room:    r.Key.String(),
			Kind:    r.Key.Kind,
			ID:      r.Key.ID,
			Members: r.Members,
		})
	}
	return out
}

// Ready reports whether the server accepts new connections.
func (s *Service) Ready() bool {
	return !s.hub.Draining()
}

// GetConnectedClients returns IDs of all connected clients.
func (s *Service) GetConnectedClients() []string {
	return s.hub.ConnectedClients()
}

// GetClientInfo returns info for a connected client, or error.
func (s *Service) GetClientInfo(clientID string) (*types.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		s.logger.Debug().Str("conn_id", clientID).Msg("client lookup missed")
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	return info, nil
}

// Clients returns info for every connected client, ordered by connection time.
// Clients that disconnect while the list is built are skipped.
func (s *Service) Clients() ClientList {
	ids := s.GetConnectedClients()
	infos := make([]types.ClientInfo, 0, len(ids))
	for _, id := range ids {
		if info := s.hub.ClientInfo(id); info != nil {
			infos = append(infos, *info)
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
		}
		return infos[i].ID < infos[j].ID
	})
	s.logger.Debug().Int("count", len(infos)).Msg("listed clients")
	return ClientList{Clients: infos, Count: len(infos)}
}
