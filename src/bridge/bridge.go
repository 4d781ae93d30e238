package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/orchestra-mcp/presence/src/types"
)

// Bridge defines the interface for cross-instance room broadcasting.
// Implementations relay room events between multiple server instances.
type Bridge interface {
	// Publish sends a room event to all other instances via the bridge.
	Publish(ev types.RoomEvent) error

	// Start begins listening for events from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the Hub to receive events from the bridge.
type BroadcastTarget interface {
	BroadcastToLocal(ev types.RoomEvent)
}

// envelope wraps a room event with the originating instance ID
// so that a node can skip its own published events.
type envelope struct {
	InstanceID string          `json:"instance_id"`
	Event      types.RoomEvent `json:"event"`
}

func encodeEnvelope(instanceID string, ev types.RoomEvent) ([]byte, error) {
	return json.Marshal(envelope{InstanceID: instanceID, Event: ev})
}

// decodeEnvelope returns the relayed event and whether it should be
// delivered locally. Events published by self are skipped.
func decodeEnvelope(payload []byte, self string) (types.RoomEvent, bool, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return types.RoomEvent{}, false, fmt.Errorf("decode envelope: %w", err)
	}
	if env.InstanceID == self {
		return types.RoomEvent{}, false, nil
	}
	if env.Event.Room.ID == "" || len(env.Event.Frame) == 0 {
		return types.RoomEvent{}, false, fmt.Errorf("decode envelope: incomplete event from %s", env.InstanceID)
	}
	return env.Event, true, nil
}
