package types

import (
	"encoding/json"
	"time"
)

// Frame is a WebSocket message in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an outbound frame once so that every recipient of a
// broadcast receives identical bytes.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// RoomKind distinguishes kanban boards from chat channels.
type RoomKind string

const (
	RoomBoard   RoomKind = "board"
	RoomChannel RoomKind = "channel"
)

// RoomKey identifies a room. Boards and channels live in separate namespaces.
type RoomKey struct {
	Kind RoomKind `json:"kind"`
	ID   string   `json:"id"`
}

// BoardRoom returns the key of a board room.
func BoardRoom(id string) RoomKey { return RoomKey{Kind: RoomBoard, ID: id} }

// ChannelRoom returns the key of a channel room.
func ChannelRoom(id string) RoomKey { return RoomKey{Kind: RoomChannel, ID: id} }

func (k RoomKey) String() string { return string(k.Kind) + ":" + k.ID }

// RoomEvent is a pre-encoded room broadcast. It is what the bridge relays
// between instances.
type RoomEvent struct {
	Room    RoomKey         `json:"room"`
	Event   string          `json:"event"`
	Exclude string          `json:"exclude,omitempty"` // user id that must not receive it
	Frame   json.RawMessage `json:"frame"`
}

// ClientInfo holds metadata about a connected WebSocket client.
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id,omitempty"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`
	Rooms       []string  `json:"rooms"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}
