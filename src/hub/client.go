package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/orchestra-mcp/presence/src/types"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// State is the lifecycle position of a connection.
type State int32

const (
	StateUnidentified State = iota
	StateIdentified
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Client wraps a WebSocket connection and manages message flow.
type Client struct {
	ID          string
	conn        types.Conn
	hub         *Hub
	send        chan []byte
	connectedAt time.Time
	limiter     *rate.Limiter
	logger      zerolog.Logger

	// ops serializes event handling and cleanup for this connection.
	ops     sync.Mutex
	cleanup sync.Once

	mu       sync.RWMutex
	state    State
	userID   string
	userName string
	rooms    map[types.RoomKey]struct{}
	done     chan struct{}
	closed   bool
}

// NewClient creates a new WebSocket client wrapper.
func NewClient(id string, conn types.Conn, h *Hub) *Client {
	c := &Client{
		ID:          id,
		conn:        conn,
		hub:         h,
		send:        make(chan []byte, h.opts.SendBuffer),
		connectedAt: time.Now(),
		logger:      h.logger.With().Str("conn_id", id).Logger(),
		rooms:       make(map[types.RoomKey]struct{}),
		done:        make(chan struct{}),
	}
	if h.opts.EventRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(h.opts.EventRate), h.opts.EventBurst)
	}
	return c
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	return types.ClientInfo{
		ID:          c.ID,
		UserID:      c.UserID(),
		State:       c.State().String(),
		ConnectedAt: c.connectedAt,
		Rooms:       c.roomNames(),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// UserID returns the bound user id, or "" before identification.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) identity() (userID, name string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.userName, c.state == StateIdentified
}

func (c *Client) bind(userID, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.userID, c.userName = userID, name
	c.state = StateIdentified
	return true
}

func (c *Client) unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID, c.userName = "", ""
	if !c.closed {
		c.state = StateUnidentified
	}
}

func (c *Client) joined(key types.RoomKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[key]
	return ok
}

func (c *Client) addRoom(key types.RoomKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[key] = struct{}{}
}

func (c *Client) removeRoom(key types.RoomKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, key)
}

// joinedRooms returns the rooms this connection is in, ordered by key.
func (c *Client) joinedRooms() []types.RoomKey {
	c.mu.RLock()
	keys := make([]types.RoomKey, 0, len(c.rooms))
	for k := range c.rooms {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func (c *Client) roomNames() []string {
	keys := c.joinedRooms()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return names
}

func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// Send queues a frame for the write pump. It never blocks: frames for a
// closed connection are discarded and a full buffer drops the frame.
func (c *Client) Send(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Debug().Msg("send buffer full, dropping")
		c.hub.metrics.RecordSendDropped()
		return false
	}
}

// ReadPump reads frames from the WebSocket and handles them in order.
// It runs cleanup when the transport closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug().Err(err).Msg("read ended")
			return
		}
		c.hub.dispatch(c, data)
	}
}

// WritePump writes queued frames to the WebSocket and keeps it alive with
// periodic pings.
func (c *Client) WritePump() {
	defer c.conn.Close()

	var ping <-chan time.Time
	if c.hub.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.hub.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(frame); err != nil {
				return
			}
		case <-ping:
			if err := c.conn.Ping(); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close marks the client disconnected and stops its pumps. Nothing is
// delivered to it afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.state = StateDisconnected
		close(c.done)
		close(c.send)
	}
}
