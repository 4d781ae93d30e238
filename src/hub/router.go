package hub

import (
	"github.com/orchestra-mcp/presence/src/types"
)

// broadcastMessage stamps a chat message and delivers it to every
// connection of every channel member, the author included. Messages in one
// channel are sequenced so all recipients observe the same order.
func (h *Hub) broadcastMessage(c *Client, channelID, text string) {
	key := types.ChannelRoom(channelID)
	userID, name, _ := c.identity()

	ok := h.rooms.Sequence(key, func(members []string) {
		frame, err := types.Encode(types.EventMessageNew, types.MessageNew{
			ChannelID: channelID,
			User:      types.UserRef{ID: userID, Name: name},
			Message:   text,
			Timestamp: h.now().UTC(),
		})
		if err != nil {
			c.logger.Error().Err(err).Msg("encode message")
			return
		}
		n := h.deliverUsers(members, frame)
		h.metrics.RecordDelivery(types.EventMessageNew, n)
		h.publishToBridge(types.RoomEvent{Room: key, Event: types.EventMessageNew, Frame: frame})

		c.logger.Debug().
			Str("user_id", userID).
			Str("room", key.String()).
			Int("recipients", n).
			Msg("message broadcast")
	})
	if !ok {
		c.logger.Debug().Str("room", key.String()).Msg("message for missing room")
	}
}

// broadcastCursor fans a cursor position out to the other members of a
// board. The mover's own connections are skipped.
func (h *Hub) broadcastCursor(c *Client, boardID string, x, y float64) {
	key := types.BoardRoom(boardID)
	userID, name, _ := c.identity()

	others := h.rooms.MembersExcept(key, userID)
	frame, err := types.Encode(types.EventCursorUpdate, types.CursorUpdate{
		UserID:   userID,
		UserName: name,
		X:        x,
		Y:        y,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("encode cursor")
		return
	}
	n := h.deliverUsers(others, frame)
	h.metrics.RecordDelivery(types.EventCursorUpdate, n)
	h.publishToBridge(types.RoomEvent{
		Room:    key,
		Event:   types.EventCursorUpdate,
		Exclude: userID,
		Frame:   frame,
	})
}

// roomDeparture tells the remaining members of a room that userID has no
// connection left in it.
func (h *Hub) roomDeparture(key types.RoomKey, userID string) {
	var (
		event string
		data  any
	)
	switch key.Kind {
	case types.RoomBoard:
		event, data = types.EventBoardUserLeft, types.BoardUserLeft{UserID: userID, BoardID: key.ID}
	default:
		event, data = types.EventChannelUserLeft, types.ChannelUserLeft{UserID: userID, ChannelID: key.ID}
	}
	frame, err := types.Encode(event, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("encode departure")
		return
	}
	n := h.deliverUsers(h.rooms.Members(key), frame)
	h.metrics.RecordDelivery(event, n)
	h.publishToBridge(types.RoomEvent{Room: key, Event: event, Exclude: userID, Frame: frame})

	h.logger.Debug().Str("user_id", userID).Str("room", key.String()).Msg("user left room")
}

// deliverUsers queues frame to every open connection of each user.
func (h *Hub) deliverUsers(userIDs []string, frame []byte) int {
	n := 0
	for _, uid := range userIDs {
		for _, cid := range h.registry.Connections(uid) {
			if c := h.client(cid); c != nil && c.Send(frame) {
				n++
			}
		}
	}
	return n
}

// publishToBridge forwards a room event to the bridge if one is attached.
func (h *Hub) publishToBridge(ev types.RoomEvent) {
	h.bridgeMu.RLock()
	b := h.bridge
	h.bridgeMu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(ev); err != nil {
		h.logger.Error().Err(err).Str("room", ev.Room.String()).Msg("bridge publish failed")
	}
}
