// Package event is an in-process publish/subscribe bus for item lifecycle
// notifications.
package event

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type names an event.
type Type string

const (
	// ImagesUpdated fires after an item's images were replaced.
	ImagesUpdated Type = "images.updated"
	// ItemReloaded fires after an item snapshot was re-read from the store.
	ItemReloaded Type = "item.reloaded"
	// TaskFinished fires when a background task reaches a terminal status.
	TaskFinished Type = "task.finished"
)

// Event is a single notification.
type Event struct {
	Type   Type      `json:"type"`
	ItemID string    `json:"item_id"`
	At     time.Time `json:"at"`
	Data   any       `json:"data,omitempty"`
}

const defaultBuffer = 16

type subscriber struct {
	ch    chan Event
	types map[Type]bool // empty means all types
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	buffer int
}

// NewBus creates a bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{subs: make(map[int]*subscriber), buffer: buffer}
}

// Subscribe returns a channel receiving events of the given types (all types
// when none are given) and a function that unsubscribes and closes it.
func (b *Bus) Subscribe(types ...Type) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, b.buffer), types: make(map[Type]bool, len(types))}
	for _, t := range types {
		s.types[t] = true
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

// Publish delivers e to every matching subscriber.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if len(s.types) > 0 && !s.types[e.Type] {
			continue
		}
		select {
		case s.ch <- e:
		default:
			zap.L().Warn("event: subscriber buffer full, dropping event",
				zap.String("type", string(e.Type)),
				zap.String("item_id", e.ItemID),
			)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
