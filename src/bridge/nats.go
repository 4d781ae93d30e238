package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/orchestra-mcp/presence/src/types"
	"github.com/rs/zerolog"
)

// NATSBridge relays room events between server instances over a core NATS subject.
type NATSBridge struct {
	cfg        *NATSConfig
	instanceID string
	hub        BroadcastTarget
	logger     zerolog.Logger
	out        *outbox

	mu  sync.RWMutex
	nc  *nats.Conn
	sub *nats.Subscription
}

// NewNATSBridge creates a bridge backed by NATS. No connection is made until Start.
func NewNATSBridge(cfg *NATSConfig, hub BroadcastTarget, logger zerolog.Logger) *NATSBridge {
	b := &NATSBridge{
		cfg:        cfg,
		instanceID: uuid.New().String(),
		hub:        hub,
		logger:     logger.With().Str("component", "nats-bridge").Logger(),
	}
	b.out = newOutbox(0, b.publish, b.logger)
	return b
}

// Start connects to NATS and subscribes to the broadcast subject.
func (b *NATSBridge) Start() error {
	nc, err := nats.Connect(b.cfg.URL,
		nats.Name(b.cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			b.logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return err
	}

	sub, err := nc.Subscribe(b.cfg.Subject, b.handleNATSMessage)
	if err != nil {
		nc.Close()
		return err
	}

	b.mu.Lock()
	b.nc = nc
	b.sub = sub
	b.mu.Unlock()

	b.out.start()

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("subject", b.cfg.Subject).
		Msg("nats bridge started")
	return nil
}

// Publish queues a room event for delivery to the other instances.
func (b *NATSBridge) Publish(ev types.RoomEvent) error {
	return b.out.push(b.instanceID, ev)
}

func (b *NATSBridge) publish(payload []byte) error {
	b.mu.RLock()
	nc := b.nc
	b.mu.RUnlock()
	if nc == nil {
		return ErrNotStarted
	}
	return nc.Publish(b.cfg.Subject, payload)
}

// Stop flushes pending publishes and drains the NATS connection.
func (b *NATSBridge) Stop() error {
	b.out.stop()

	b.mu.Lock()
	nc, sub := b.nc, b.sub
	b.nc, b.sub = nil, nil
	b.mu.Unlock()

	if sub != nil {
		_ = sub.Unsubscribe()
	}
	if nc == nil {
		return nil
	}
	return nc.Drain()
}

// Available reports whether the NATS connection is up.
func (b *NATSBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nc != nil && b.nc.IsConnected()
}

func (b *NATSBridge) handleNATSMessage(m *nats.Msg) {
	ev, ok, err := decodeEnvelope(m.Data, b.instanceID)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to decode nats message")
		return
	}
	if !ok {
		return
	}
	b.logger.Debug().
		Str("room", ev.Room.String()).
		Str("event", ev.Event).
		Msg("relaying event from nats")
	b.hub.BroadcastToLocal(ev)
}
