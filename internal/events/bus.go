package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/athena-dhcpd/athena-dhcpc/internal/metrics"
)

// Bus is a non-blocking event bus that fans out events to subscribers.
// The event channel is buffered; if it is full, events are dropped with a warning.
type Bus struct {
	ch          chan Event
	subscribers []chan Event
	mu          sync.RWMutex
	logger      *slog.Logger
	drops       atomic.Uint64
	done        chan struct{}
	stopOnce    sync.Once
	running     atomic.Bool
	stopped     chan struct{}
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Bus{
		ch:      make(chan Event, bufferSize),
		logger:  logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins dispatching events to subscribers. Call in a goroutine.
// Events already buffered when Stop is called are still delivered.
func (b *Bus) Start() {
	b.running.Store(true)
	defer close(b.stopped)
	for {
		select {
		case evt := <-b.ch:
			b.deliver(evt)
		case <-b.done:
			for {
				select {
				case evt := <-b.ch:
					b.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		select {
		case sub <- evt:
		default:
			b.logger.Warn("subscriber event buffer full, dropping event",
				"event_type", string(evt.Type))
		}
	}
}

// Stop shuts down the event bus and waits for buffered events to reach
// subscribers. Publishing after Stop is safe but the events are never
// delivered.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
	if b.running.Load() {
		<-b.stopped
	}
}

// Publish sends an event to the bus. Non-blocking: drops if the buffer is full.
func (b *Bus) Publish(evt Event) {
	metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
	select {
	case b.ch <- evt:
	default:
		drops := b.drops.Add(1)
		metrics.EventBufferDrops.Inc()
		b.logger.Warn("event bus buffer full, dropping event",
			"event_type", string(evt.Type),
			"total_drops", drops)
	}
}

// Subscribe returns a new channel that receives all events from the bus.
// The caller should read from the channel to avoid drops.
func (b *Bus) Subscribe(bufferSize int) chan Event {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	ch := make(chan Event, bufferSize)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel from the bus and closes it.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Drops returns the total number of dropped events.
func (b *Bus) Drops() uint64 {
	return b.drops.Load()
}
