package bridge

import (
	"errors"
	"sync"

	"github.com/orchestra-mcp/presence/src/types"
	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned by Publish when the outbound queue is saturated.
	ErrQueueFull = errors.New("bridge: publish queue full")
	// ErrNotStarted is returned by Publish before Start succeeds or after Stop.
	ErrNotStarted = errors.New("bridge: not started")
)

// outbox decouples Publish from network I/O. Events are encoded by the
// caller's goroutine and written by a single sender goroutine in order.
type outbox struct {
	queue  chan []byte
	send   func([]byte) error
	logger zerolog.Logger

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
}

func newOutbox(size int, send func([]byte) error, logger zerolog.Logger) *outbox {
	if size <= 0 {
		size = 1024
	}
	return &outbox{queue: make(chan []byte, size), send: send, logger: logger}
}

func (o *outbox) start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	o.running = true
	o.wg.Add(1)
	go o.loop()
}

func (o *outbox) loop() {
	defer o.wg.Done()
	for payload := range o.queue {
		if err := o.send(payload); err != nil {
			o.logger.Error().Err(err).Msg("bridge publish failed")
		}
	}
}

func (o *outbox) push(instanceID string, ev types.RoomEvent) error {
	data, err := encodeEnvelope(instanceID, ev)
	if err != nil {
		return err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.running {
		return ErrNotStarted
	}
	select {
	case o.queue <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// stop flushes queued events and waits for the sender to exit.
func (o *outbox) stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.queue)
	o.mu.Unlock()
	o.wg.Wait()
}
