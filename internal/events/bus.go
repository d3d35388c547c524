package events

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriptionBuffer = 64

// Bus fans events out to in-process subscribers. Publishing never blocks: a
// subscriber that falls behind loses events rather than stalling the
// pipeline.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is one reader's view of the bus. Receive from C until it is
// closed, then stop.
type Subscription struct {
	C <-chan Event

	bus     *Bus
	ch      chan Event
	dropped int64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new reader. buffer <= 0 uses the default. On a
// closed bus the returned subscription's channel is already closed.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}

	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, bus: b, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscriber with buffer room.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			atomic.AddInt64(&sub.dropped, 1)
		}
	}
}

// Close shuts the bus down and closes every subscription channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*Subscription]struct{})
}

// SubscriberCount reports how many subscriptions are live.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches the subscription and closes its channel. Safe to call more
// than once and after the bus itself closed.
func (s *Subscription) Close() {
	s.bus.remove(s)
}

// Dropped reports how many events this subscriber missed due to a full
// buffer.
func (s *Subscription) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}
