package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSubscriberBehind is returned when at least one subscriber's buffer was
// full and the event was dropped for it.
var ErrSubscriberBehind = errors.New("subscriber buffer full, event dropped")

// Broadcaster delivers events to in-process subscribers such as UI streams.
// Delivery never blocks the emitter.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]chan Event
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uuid.UUID]chan Event)}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	id := uuid.New()
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Notify implements Sink.
func (b *Broadcaster) Notify(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := false
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped = true
		}
	}
	if dropped {
		return ErrSubscriberBehind
	}
	return nil
}
