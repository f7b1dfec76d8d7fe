// Package events provides per-event-type publish/subscribe topics with
// bounded buffered history.
package events

import (
	"log/slog"
	"sync"
)

// historySize is the per-topic ring buffer length.
const historySize = 64

// Bus is the central event bus for pub/sub.
// Delivery is non-blocking: a full subscriber channel drops the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event // eventType -> channels
	history     map[string][]Event      // eventType -> ring of recent events
	logger      *slog.Logger
	closed      bool
}

// NewBus creates a new event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string][]chan Event),
		history:     make(map[string][]Event),
		logger:      logger,
	}
}

// Publish sends an event to all subscribers of its type.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	h := append(b.history[e.EventType()], e)
	if len(h) > historySize {
		h = h[len(h)-historySize:]
	}
	b.history[e.EventType()] = h

	subs := make([]chan Event, len(b.subscribers[e.EventType()]))
	copy(subs, b.subscribers[e.EventType()])
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			b.logger.Warn("subscriber channel full, dropping event",
				"type", e.EventType(),
				"entity_type", e.EntityType(),
				"entity_id", e.EntityID())
		}
	}
}

// Subscribe returns a channel for events of a specific type.
func (b *Bus) Subscribe(eventType string, bufferSize int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// History returns the retained recent events for a type, oldest first.
func (b *Bus) History(eventType string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h := b.history[eventType]
	out := make([]Event, len(h))
	copy(out, h)
	return out
}

// Unsubscribe removes a subscription channel and closes it.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for i, sub := range subs {
			if sub == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(sub)
				return
			}
		}
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subscribers = nil
	return nil
}
