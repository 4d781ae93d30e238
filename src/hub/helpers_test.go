package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/orchestra-mcp/presence/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// mockConn implements types.Conn for testing without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	written  [][]byte
	readCh   chan []byte
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-m.readCh:
		return data, nil
	case <-m.closedCh:
		return nil, &closeError{}
	}
}

func (m *mockConn) WriteMessage(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, data)
	return nil
}

func (m *mockConn) Ping() error { return nil }

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) getWritten() []types.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Frame, 0, len(m.written))
	for _, w := range m.written {
		var f types.Frame
		if json.Unmarshal(w, &f) == nil {
			out = append(out, f)
		}
	}
	return out
}

type closeError struct{}

func (e *closeError) Error() string { return "connection closed" }

// mockBridge records published room events.
type mockBridge struct {
	mu        sync.Mutex
	published []types.RoomEvent
}

func (b *mockBridge) Publish(ev types.RoomEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, ev)
	return nil
}

func (b *mockBridge) Available() bool { return true }

func (b *mockBridge) events() []types.RoomEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.RoomEvent(nil), b.published...)
}

func newTestHub(t *testing.T, opts ...Options) *Hub {
	t.Helper()
	o := Options{SendBuffer: 64}
	if len(opts) > 0 {
		o = opts[0]
	}
	h := New(zerolog.Nop(), o)
	t.Cleanup(h.Stop)
	return h
}

// connect registers an unidentified client without starting its pumps.
func connect(t *testing.T, h *Hub, id string) *Client {
	t.Helper()
	c := NewClient(id, newMockConn(), h)
	require.NoError(t, h.Register(c))
	return c
}

func emit(t *testing.T, h *Hub, c *Client, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	h.dispatch(c, raw)
}

func identify(t *testing.T, h *Hub, c *Client, id, name string) {
	t.Helper()
	emit(t, h, c, types.EventIdentify, map[string]any{"id": id, "name": name})
}

// drain returns every frame queued for c so far.
func drain(t *testing.T, c *Client) []types.Frame {
	t.Helper()
	var out []types.Frame
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return out
			}
			var f types.Frame
			require.NoError(t, json.Unmarshal(raw, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func eventNames(frames []types.Frame) []string {
	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = f.Event
	}
	return names
}

func payload[T any](t *testing.T, f types.Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}
