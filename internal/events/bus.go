package events

import (
	"sync"
)

// Bus is a channel-based pub-sub event bus. Publishing never blocks: a
// subscriber that falls behind has events dropped on its channel, keeping
// the scheduler's control loop independent of slow observers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*Subscription
	closed bool
}

// Subscription is one subscriber's view of the bus. Events arrive on C.
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	topic string // "" subscribes to all topics
	id    int
	bus   *Bus
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe registers a subscriber for one topic. An empty topic receives
// every event. bufSize defaults to 256 if <= 0.
func (b *Bus) Subscribe(topic string, bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = 256
	}

	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch, topic: topic, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return sub
	}

	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Cancel removes the subscription and closes its channel.
func (s *Subscription) Cancel() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if s.bus.closed {
		return
	}
	if _, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(s.ch)
	}
}

// Publish delivers an event to every subscriber of topic (and to all-topic
// subscribers). Full channels drop the event for that subscriber.
func (b *Bus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.topic != "" && sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber is behind; drop rather than block.
		}
	}
}

// Close shuts the bus down and closes every subscriber channel. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
