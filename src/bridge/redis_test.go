package bridge

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/orchestra-mcp/presence/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcastTarget records events forwarded from the bridge.
type mockBroadcastTarget struct {
	mu       sync.Mutex
	received []types.RoomEvent
}

func (m *mockBroadcastTarget) BroadcastToLocal(ev types.RoomEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, ev)
}

func (m *mockBroadcastTarget) events() []types.RoomEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.RoomEvent(nil), m.received...)
}

func cursorEvent(t *testing.T) types.RoomEvent {
	t.Helper()
	frame, err := types.Encode(types.EventCursorUpdate, types.CursorUpdate{UserID: "u1", UserName: "Alice", X: 1, Y: 2})
	require.NoError(t, err)
	return types.RoomEvent{
		Room:    types.BoardRoom("b1"),
		Event:   types.EventCursorUpdate,
		Exclude: "u1",
		Frame:   frame,
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	ev := cursorEvent(t)

	data, err := encodeEnvelope("node-1", ev)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "instance_id")
	assert.Contains(t, raw, "event")

	out, ok, err := decodeEnvelope(data, "node-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ev.Room, out.Room)
	assert.Equal(t, ev.Event, out.Event)
	assert.Equal(t, "u1", out.Exclude)
	assert.JSONEq(t, string(ev.Frame), string(out.Frame))
}

func TestDecodeEnvelopeSkipsSelf(t *testing.T) {
	data, err := encodeEnvelope("node-1", cursorEvent(t))
	require.NoError(t, err)

	_, ok, err := decodeEnvelope(data, "node-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, _, err := decodeEnvelope([]byte("{not json"), "node-1")
	assert.Error(t, err)

	_, _, err = decodeEnvelope([]byte(`{"instance_id":"node-2","event":{"event":"x"}}`), "node-1")
	assert.Error(t, err)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "presence:ws:", cfg.Prefix)
	assert.Equal(t, 1024, cfg.Queue)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_WS_PREFIX", "test:ws:")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, "redis.example.com:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, "test:ws:", cfg.Prefix)
}

func TestRedisConfigFromEnvDefaults(t *testing.T) {
	// No env vars set, should return defaults.
	cfg := RedisConfigFromEnv()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "presence:ws:", cfg.Prefix)
}

func TestRedisConfigFromEnvInvalidDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, 0, cfg.DB) // falls back to default
}

func TestRedisBridgeAvailableFalseBeforeStart(t *testing.T) {
	rb := NewRedisBridge(DefaultRedisConfig(), &mockBroadcastTarget{}, testLogger())
	assert.False(t, rb.Available())
	assert.ErrorIs(t, rb.Publish(cursorEvent(t)), ErrNotStarted)
}

func TestRedisBridgeInstanceIDUnique(t *testing.T) {
	target := &mockBroadcastTarget{}
	cfg := DefaultRedisConfig()
	b1 := NewRedisBridge(cfg, target, testLogger())
	b2 := NewRedisBridge(cfg, target, testLogger())
	assert.NotEqual(t, b1.instanceID, b2.instanceID)
}

func TestRedisBridgeRelaysOtherInstances(t *testing.T) {
	target := &mockBroadcastTarget{}
	rb := NewRedisBridge(DefaultRedisConfig(), target, testLogger())

	own, err := encodeEnvelope(rb.instanceID, cursorEvent(t))
	require.NoError(t, err)
	other, err := encodeEnvelope("someone-else", cursorEvent(t))
	require.NoError(t, err)

	rb.handleRedisMessage(&redis.Message{Payload: string(own)})
	rb.handleRedisMessage(&redis.Message{Payload: "garbage"})
	rb.handleRedisMessage(&redis.Message{Payload: string(other)})

	got := target.events()
	require.Len(t, got, 1)
	assert.Equal(t, types.BoardRoom("b1"), got[0].Room)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
