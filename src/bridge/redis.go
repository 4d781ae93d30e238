package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/presence/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// RedisBridge relays room events between server instances via Redis pub/sub.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	instanceID string
	hub        BroadcastTarget
	logger     zerolog.Logger
	out        *outbox

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisBridge creates a bridge that uses Redis pub/sub for cross-instance messaging.
func NewRedisBridge(cfg *RedisConfig, hub BroadcastTarget, logger zerolog.Logger) *RedisBridge {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	b := &RedisBridge{
		client:     client,
		channel:    cfg.Prefix + "broadcast",
		instanceID: uuid.New().String(),
		hub:        hub,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
	b.out = newOutbox(cfg.Queue, b.publish, b.logger)
	return b
}

// Start subscribes to the Redis broadcast channel and begins relaying events.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return err
	}

	sub := b.client.Subscribe(b.ctx, b.channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(b.ctx); err != nil {
		_ = sub.Close()
		return err
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.out.start()
	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("channel", b.channel).
		Msg("redis bridge started")
	return nil
}

// Publish queues a room event for delivery to the other instances.
func (b *RedisBridge) Publish(ev types.RoomEvent) error {
	return b.out.push(b.instanceID, ev)
}

func (b *RedisBridge) publish(payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Stop flushes pending publishes, unsubscribes and closes the Redis connection.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.out.stop()
	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// Available reports whether the bridge is connected.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// listen reads events from the Redis subscription and forwards them to the local hub.
func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleRedisMessage(msg)
		case <-b.ctx.Done():
			return
		}
	}
}

// handleRedisMessage decodes an envelope and forwards non-self events to the hub.
func (b *RedisBridge) handleRedisMessage(msg *redis.Message) {
	ev, ok, err := decodeEnvelope([]byte(msg.Payload), b.instanceID)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to decode redis message")
		return
	}
	if !ok {
		return
	}

	b.logger.Debug().
		Str("room", ev.Room.String()).
		Str("event", ev.Event).
		Msg("relaying event from redis")

	b.hub.BroadcastToLocal(ev)
}
