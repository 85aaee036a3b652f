package events

import (
	"log/slog"
	"sync"
)

// DefaultCapacity is the per-subscriber event buffer. 256 is plenty for
// real-time UI updates; slower consumers are lagged, never blocked.
const DefaultCapacity = 256

// Bus is a multi-producer, multi-consumer broadcast channel. Publishing
// never blocks: a subscriber whose buffer is full has the event dropped
// and its lag counter incremented.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
	cap  int
}

// Subscription is one consumer's view of the bus. Events arrive on C.
// A subscription may opt into per-workspace filtering; with an empty
// filter set all events are forwarded.
type Subscription struct {
	bus *Bus
	ch  chan Event

	mu     sync.Mutex
	filter map[string]struct{}
	lagged uint64
}

// NewBus creates a bus with the given per-subscriber capacity
// (DefaultCapacity if cap <= 0).
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		subs: make(map[*Subscription]struct{}),
		cap:  capacity,
	}
}

// Subscribe registers a new consumer.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus: b,
		ch:  make(chan Event, b.cap),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish fans the event out to all interested subscribers without
// blocking the producer.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.mu.Lock()
			sub.lagged++
			lagged := sub.lagged
			sub.mu.Unlock()
			if lagged%64 == 1 {
				slog.Warn("event subscriber lagging, dropping events",
					slog.String("event", event.Type),
					slog.Uint64("dropped", lagged))
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// C returns the receive channel. It is closed when the subscription is
// closed.
func (s *Subscription) C() <-chan Event { return s.ch }

// Lagged returns the number of events dropped for this subscriber.
func (s *Subscription) Lagged() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lagged
}

// SubscribeWorkspace adds a workspace id to this subscription's filter set.
// Once the set is non-empty only events for those workspaces are forwarded.
func (s *Subscription) SubscribeWorkspace(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter == nil {
		s.filter = make(map[string]struct{})
	}
	s.filter[id] = struct{}{}
}

// UnsubscribeWorkspace removes a workspace id from the filter set. Removing
// the last entry reverts the subscription to receiving everything.
func (s *Subscription) UnsubscribeWorkspace(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.filter, id)
}

// Close detaches the subscription from the bus and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	_, open := s.bus.subs[s]
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	if open {
		close(s.ch)
	}
}

func (s *Subscription) wants(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.filter) == 0 {
		return true
	}
	ws := event.WorkspaceID()
	if ws == "" {
		return true
	}
	_, ok := s.filter[ws]
	return ok
}
