package hub

import (
	"encoding/json"

	"github.com/orchestra-mcp/presence/src/metrics"
	"github.com/orchestra-mcp/presence/src/types"
	"github.com/rs/zerolog"
)

type eventHandler func(c *Client, data json.RawMessage)

func (h *Hub) registerHandlers() {
	h.handlers = map[string]eventHandler{
		types.EventIdentify:      h.handleIdentify,
		types.EventUserIdentify:  h.handleIdentify,
		types.EventBoardJoin:     h.handleBoardJoin,
		types.EventBoardLeave:    h.handleBoardLeave,
		types.EventCursorMove:    h.handleCursorMove,
		types.EventChannelJoin:   h.handleChannelJoin,
		types.EventChannelLeave:  h.handleChannelLeave,
		types.EventMessageCreate: h.handleMessageCreate,
	}
}

// dispatch decodes one inbound frame and routes it. Events from one
// connection are handled one at a time; nothing is handled after cleanup.
// Bad input is logged and dropped, never answered.
func (h *Hub) dispatch(c *Client, raw []byte) {
	c.ops.Lock()
	defer c.ops.Unlock()
	if c.State() == StateDisconnected {
		return
	}

	var f types.Frame
	if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
		h.reject(c, "", metrics.ReasonMalformed, zerolog.DebugLevel, "malformed frame")
		return
	}
	handler, ok := h.handlers[f.Event]
	if !ok {
		h.reject(c, "", metrics.ReasonUnknown, zerolog.DebugLevel, "unknown event")
		return
	}
	if !c.allow() {
		h.reject(c, f.Event, metrics.ReasonRateLimited, zerolog.DebugLevel, "rate limited")
		return
	}
	h.metrics.RecordEvent(f.Event)
	handler(c, f.Data)
}

func (h *Hub) reject(c *Client, event, reason string, level zerolog.Level, msg string) {
	h.metrics.RecordDropped(reason)
	c.logger.WithLevel(level).Str("event", event).Str("reason", reason).Msg(msg)
}

func decode[T any](h *Hub, c *Client, event string, data json.RawMessage) (T, bool) {
	var v T
	if len(data) == 0 || json.Unmarshal(data, &v) != nil {
		h.reject(c, event, metrics.ReasonMalformed, zerolog.DebugLevel, "malformed payload")
		return v, false
	}
	return v, true
}

// requireIdentity returns the bound user, or logs and reports false for
// connections that have not identified yet.
func (h *Hub) requireIdentity(c *Client, event string) (string, bool) {
	userID, _, ok := c.identity()
	if !ok {
		h.reject(c, event, metrics.ReasonUnidentified, zerolog.WarnLevel, "event before identify")
		return "", false
	}
	return userID, true
}

func (h *Hub) handleIdentify(c *Client, data json.RawMessage) {
	p, ok := decode[types.IdentifyPayload](h, c, types.EventIdentify, data)
	if !ok {
		return
	}
	if p.ID == "" {
		h.reject(c, types.EventIdentify, metrics.ReasonMalformed, zerolog.DebugLevel, "identify without id")
		return
	}

	current, _, bound := c.identity()
	if bound && current == p.ID {
		c.logger.Debug().Str("user_id", p.ID).Msg("already identified")
		return
	}

	var rejoin []types.RoomKey
	if bound {
		rejoin = c.joinedRooms()
		h.release(c, current, rejoin)
		c.unbind()
		c.logger.Info().Str("from", current).Str("to", p.ID).Msg("connection rebinding")
	}

	u, created, err := h.presence.arrive(c, p.ID, p.DisplayName())
	if err != nil {
		c.logger.Warn().Err(err).Str("user_id", p.ID).Msg("identify failed")
		return
	}
	c.bind(u.ID, u.Name)

	if !created {
		r := h.roster()
		frame, err := types.Encode(types.EventUserConnected, types.Presence{
			User:       types.UserRef{ID: u.ID, Name: u.Name},
			TotalUsers: r.TotalUsers,
			Users:      r.Users,
		})
		if err == nil {
			c.Send(frame)
		}
	}
	for _, key := range rejoin {
		h.join(c, key)
	}
	h.updateGauges()

	c.logger.Info().
		Str("user_id", u.ID).
		Bool("new_user", created).
		Int("connections", u.Connections).
		Msg("client identified")
}

func (h *Hub) join(c *Client, key types.RoomKey) {
	userID, _, _ := c.identity()
	c.addRoom(key)
	first := h.rooms.Join(key, userID, c.ID)
	h.metrics.SetRooms(h.rooms.Count())
	c.logger.Debug().Str("user_id", userID).Str("room", key.String()).Bool("first", first).Msg("joined room")
}

func (h *Hub) leave(c *Client, event string, key types.RoomKey) {
	userID, ok := h.requireIdentity(c, event)
	if !ok {
		return
	}
	if !c.joined(key) {
		h.reject(c, event, metrics.ReasonNotJoined, zerolog.DebugLevel, "leave for room not joined")
		return
	}
	c.removeRoom(key)
	if h.rooms.Leave(key, userID, c.ID) {
		h.roomDeparture(key, userID)
	}
	h.metrics.SetRooms(h.rooms.Count())
}

func (h *Hub) handleBoardJoin(c *Client, data json.RawMessage) {
	if _, ok := h.requireIdentity(c, types.EventBoardJoin); !ok {
		return
	}
	p, ok := decode[types.BoardRef](h, c, types.EventBoardJoin, data)
	if !ok || p.BoardID == "" {
		if ok {
			h.reject(c, types.EventBoardJoin, metrics.ReasonMalformed, zerolog.DebugLevel, "missing boardId")
		}
		return
	}
	h.join(c, types.BoardRoom(p.BoardID))
}

func (h *Hub) handleBoardLeave(c *Client, data json.RawMessage) {
	p, ok := decode[types.BoardRef](h, c, types.EventBoardLeave, data)
	if !ok {
		return
	}
	h.leave(c, types.EventBoardLeave, types.BoardRoom(p.BoardID))
}

func (h *Hub) handleChannelJoin(c *Client, data json.RawMessage) {
	if _, ok := h.requireIdentity(c, types.EventChannelJoin); !ok {
		return
	}
	p, ok := decode[types.ChannelRef](h, c, types.EventChannelJoin, data)
	if !ok || p.ChannelID == "" {
		if ok {
			h.reject(c, types.EventChannelJoin, metrics.ReasonMalformed, zerolog.DebugLevel, "missing channelId")
		}
		return
	}
	h.join(c, types.ChannelRoom(p.ChannelID))
}

func (h *Hub) handleChannelLeave(c *Client, data json.RawMessage) {
	p, ok := decode[types.ChannelRef](h, c, types.EventChannelLeave, data)
	if !ok {
		return
	}
	h.leave(c, types.EventChannelLeave, types.ChannelRoom(p.ChannelID))
}

func (h *Hub) handleCursorMove(c *Client, data json.RawMessage) {
	if _, ok := h.requireIdentity(c, types.EventCursorMove); !ok {
		return
	}
	p, ok := decode[types.CursorMove](h, c, types.EventCursorMove, data)
	if !ok {
		return
	}
	if p.BoardID == "" || p.X == nil || p.Y == nil {
		h.reject(c, types.EventCursorMove, metrics.ReasonMalformed, zerolog.DebugLevel, "incomplete cursor")
		return
	}
	if !c.joined(types.BoardRoom(p.BoardID)) {
		h.reject(c, types.EventCursorMove, metrics.ReasonNotJoined, zerolog.DebugLevel, "cursor for board not joined")
		return
	}
	h.broadcastCursor(c, p.BoardID, *p.X, *p.Y)
}

func (h *Hub) handleMessageCreate(c *Client, data json.RawMessage) {
	if _, ok := h.requireIdentity(c, types.EventMessageCreate); !ok {
		return
	}
	p, ok := decode[types.MessageCreate](h, c, types.EventMessageCreate, data)
	if !ok {
		return
	}
	if p.ChannelID == "" || p.Message == nil {
		h.reject(c, types.EventMessageCreate, metrics.ReasonMalformed, zerolog.DebugLevel, "incomplete message")
		return
	}
	if !c.joined(types.ChannelRoom(p.ChannelID)) {
		h.reject(c, types.EventMessageCreate, metrics.ReasonNotJoined, zerolog.DebugLevel, "message for channel not joined")
		return
	}
	h.broadcastMessage(c, p.ChannelID, *p.Message)
}
