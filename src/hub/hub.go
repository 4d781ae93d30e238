package hub

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orchestra-mcp/presence/src/metrics"
	"github.com/orchestra-mcp/presence/src/registry"
	"github.com/orchestra-mcp/presence/src/rooms"
	"github.com/orchestra-mcp/presence/src/types"
	"github.com/rs/zerolog"
)

// ErrDraining is returned by Register once Stop has been called.
var ErrDraining = errors.New("hub: shutting down")

// MessageBridge publishes room events to other server instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(ev types.RoomEvent) error
	Available() bool
}

// Options tunes per-connection behavior.
type Options struct {
	SendBuffer   int           // outbound frames buffered per connection
	PingInterval time.Duration // 0 disables server pings
	EventRate    float64       // inbound events per second, 0 disables limiting
	EventBurst   int
	Metrics      metrics.Recorder
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		SendBuffer:   256,
		PingInterval: 30 * time.Second,
		EventRate:    60,
		EventBurst:   120,
	}
}

// Hub owns every live connection, the identity registry and the room
// directory, and drives connection cleanup.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	registry *registry.Registry
	rooms    *rooms.Directory
	presence presence
	handlers map[string]eventHandler

	bridge   MessageBridge
	bridgeMu sync.RWMutex

	opts     Options
	metrics  metrics.Recorder
	logger   zerolog.Logger
	now      func() time.Time
	draining atomic.Bool
}

// New creates a new Hub instance.
func New(logger zerolog.Logger, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	if opts.EventRate > 0 && opts.EventBurst < 1 {
		opts.EventBurst = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	h := &Hub{
		clients:  make(map[string]*Client),
		registry: registry.New(logger),
		rooms:    rooms.New(),
		opts:     opts,
		metrics:  opts.Metrics,
		logger:   logger.With().Str("component", "hub").Logger(),
		now:      time.Now,
	}
	h.presence.hub = h
	h.registerHandlers()
	return h
}

// SetBridge attaches a cross-instance message bridge to the hub.
// When set, room events are also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.bridgeMu.Lock()
	defer h.bridgeMu.Unlock()
	h.bridge = b
}

// BroadcastToLocal delivers a room event from the bridge to local members
// only. It does not re-publish, preventing loops between instances.
func (h *Hub) BroadcastToLocal(ev types.RoomEvent) {
	n := h.deliverUsers(h.rooms.MembersExcept(ev.Room, ev.Exclude), ev.Frame)
	h.metrics.RecordDelivery(ev.Event, n)
}

// Register adds a new, unidentified connection.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	if h.draining.Load() {
		h.mu.Unlock()
		return ErrDraining
	}
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetConnections(n)
	c.logger.Info().Msg("client registered")
	return nil
}

// Unregister runs disconnect cleanup for a connection. It is safe to call
// more than once; cleanup happens exactly once.
func (h *Hub) Unregister(c *Client) {
	c.cleanup.Do(func() { h.disconnect(c) })
}

func (h *Hub) disconnect(c *Client) {
	c.ops.Lock()
	defer c.ops.Unlock()

	userID, _, identified := c.identity()
	joined := c.joinedRooms()
	c.Close()

	if identified {
		h.release(c, userID, joined)
	}

	h.mu.Lock()
	delete(h.clients, c.ID)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetConnections(n)
	h.updateGauges()
	c.logger.Info().Str("user_id", userID).Int("rooms", len(joined)).Msg("client unregistered")
}

// release detaches an identified connection from its rooms and its user,
// emitting room departures and, for the user's last connection, the global
// departure.
func (h *Hub) release(c *Client, userID string, joined []types.RoomKey) {
	for _, key := range joined {
		c.removeRoom(key)
		if h.rooms.Leave(key, userID, c.ID) {
			h.roomDeparture(key, userID)
		}
	}
	if d, ok := h.presence.depart(c.ID); ok && d.WasLast {
		c.logger.Info().Str("user_id", userID).Msg("user fully disconnected")
	}
}

func (h *Hub) client(id string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

func (h *Hub) snapshotClients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Stop refuses new connections and disconnects every open one.
func (h *Hub) Stop() {
	h.draining.Store(true)
	for _, c := range h.snapshotClients() {
		h.Unregister(c)
		c.conn.Close()
	}
	h.logger.Info().Msg("hub stopped")
}

// Draining reports whether Stop has been called.
func (h *Hub) Draining() bool {
	return h.draining.Load()
}

func (h *Hub) updateGauges() {
	h.metrics.SetUsers(h.registry.Count())
	h.metrics.SetRooms(h.rooms.Count())
}
