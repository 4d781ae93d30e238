package types

import "time"

// Client to server events.
const (
	EventIdentify      = "identify"
	EventUserIdentify  = "user.identify"
	EventBoardJoin     = "board.join"
	EventBoardLeave    = "board.leave"
	EventCursorMove    = "board.cursor.move"
	EventChannelJoin   = "channel.join"
	EventChannelLeave  = "channel.leave"
	EventMessageCreate = "channel.message.create"
)

// Server to client events.
const (
	EventUserConnected    = "user.connected"
	EventUserDisconnected = "user.disconnected"
	EventCursorUpdate     = "board.cursor.update"
	EventBoardUserLeft    = "board.user.left"
	EventChannelUserLeft  = "channel.user.left"
	EventMessageNew       = "channel.message.new"
)

// IdentifyPayload is sent by a client once it knows who its user is.
type IdentifyPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// DisplayName picks the best human readable name the client supplied.
func (p IdentifyPayload) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Nickname != "":
		return p.Nickname
	case p.Email != "":
		return p.Email
	}
	return p.ID
}

type BoardRef struct {
	BoardID string `json:"boardId"`
}

type ChannelRef struct {
	ChannelID string `json:"channelId"`
}

// CursorMove uses pointers so that a missing coordinate is distinguishable
// from zero.
type CursorMove struct {
	BoardID string   `json:"boardId"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
}

type MessageCreate struct {
	ChannelID string  `json:"channelId"`
	Message   *string `json:"message"`
}

// UserRef is the public part of a user.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RosterEntry describes one online user.
type RosterEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Connections int    `json:"socketCount"` // open connections for this user
}

// Presence is the payload of user.connected and user.disconnected. A
// reattaching connection receives user.connected for its own user, unicast.
type Presence struct {
	User       UserRef       `json:"user"`
	TotalUsers int           `json:"totalUsers"`
	Users      []RosterEntry `json:"users"`
}

// Roster is the online user list served by /ws/users.
type Roster struct {
	TotalUsers int           `json:"totalUsers"`
	Users      []RosterEntry `json:"users"`
}

type CursorUpdate struct {
	UserID   string  `json:"userId"`
	UserName string  `json:"userName"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type BoardUserLeft struct {
	UserID  string `json:"userId"`
	BoardID string `json:"boardId"`
}

type ChannelUserLeft struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
}

type MessageNew struct {
	ChannelID string    `json:"channelId"`
	User      UserRef   `json:"user"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
