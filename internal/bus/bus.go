// Package bus implements an in-process broadcast of session events.
// Publishing never blocks: each subscriber owns a bounded buffer and a
// slow subscriber loses its oldest undelivered events.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/robertcprice/agent-monitor/internal/session"
)

// DefaultCapacity is the per-subscriber buffer depth.
const DefaultCapacity = 1000

// Bus fans events out to any number of subscribers in publish order.
type Bus struct {
	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	capacity int
}

// Subscription is one subscriber's view of the bus. Receive from C;
// call Lagged to learn how many events were dropped while the
// subscriber fell behind.
type Subscription struct {
	C      <-chan *session.Event
	ch     chan *session.Event
	bus    *Bus
	lagged atomic.Uint64
	once   sync.Once
}

// New creates a bus with the default buffer depth.
func New() *Bus {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a bus whose subscribers buffer up to capacity
// undelivered events.
func NewWithCapacity(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		subs:     make(map[*Subscription]struct{}),
		capacity: capacity,
	}
}

// Subscribe registers a new subscriber. The caller must Close the
// subscription when done with it.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan *session.Event, b.capacity)
	sub := &Subscription{C: ch, ch: ch, bus: b}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Publish delivers the event to every subscriber. When a subscriber's
// buffer is full its oldest undelivered event is dropped to make room,
// so the publisher never blocks.
func (b *Bus) Publish(e *session.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			// Buffer full: evict the oldest, then retry once. The
			// second send can still lose the race against a concurrent
			// Publish, in which case this event is the one dropped.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- e:
			default:
			}
			sub.lagged.Add(1)
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Lagged reports how many events this subscriber has lost to overflow.
func (s *Subscription) Lagged() uint64 {
	return s.lagged.Load()
}

// Close unregisters the subscription and closes its channel. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
