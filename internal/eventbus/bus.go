// Package eventbus is an in-process, typed publish/subscribe fan-out used
// to move domain events from stream sessions to whoever wants them — the
// metric registry, the ingestion orchestrator's progress reporter, and
// ordinary library callers — without coupling publishers to consumers.
//
// It is deliberately not a message broker: there is no persistence, no
// replay, no cross-process delivery.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscriber channel capacity used when a
// caller does not specify one.
const DefaultBufferSize = 256

// Event is the envelope published onto the bus. Topic lets subscribers
// filter cheaply without type-asserting Payload; Payload carries the actual
// domain value (a schema.Order, an AdapterHealth, a ratelimit.Snapshot...).
type Event struct {
	Topic   string
	Payload any
}

// subscriber is one registered listener's bounded mailbox.
type subscriber struct {
	ch     chan Event
	topics map[string]struct{} // empty set means "all topics"
}

// Bus fans out published events to every subscriber whose topic filter
// matches. Delivery is non-blocking: a subscriber whose buffer is full has
// its oldest queued event dropped to make room, rather than stalling the
// publisher — back-pressure never propagates upstream into the stream
// session that is publishing.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	dropped     atomic.Uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]*subscriber)}
}

// Subscription is returned by Subscribe; callers read from C and must call
// Unsubscribe when done to release the mailbox.
type Subscription struct {
	C  <-chan Event
	id int
	b  *Bus
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if sub, ok := s.b.subscribers[s.id]; ok {
		close(sub.ch)
		delete(s.b.subscribers, s.id)
	}
}

// Subscribe registers a new listener with a bounded mailbox of the given
// size (DefaultBufferSize if size <= 0). If topics is empty the
// subscription receives every event published to the bus; otherwise only
// events whose Topic is in the set.
func (b *Bus) Subscribe(size int, topics ...string) *Subscription {
	if size <= 0 {
		size = DefaultBufferSize
	}

	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	sub := &subscriber{
		ch:     make(chan Event, size),
		topics: set,
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	b.mu.Unlock()

	return &Subscription{C: sub.ch, id: id, b: b}
}

// Publish fans ev out to every matching subscriber. New subscribers may
// register concurrently with a Publish call since the subscriber list is
// read under RLock.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if len(sub.topics) > 0 {
			if _, ok := sub.topics[ev.Topic]; !ok {
				continue
			}
		}
		b.deliver(sub, ev)
	}
}

// deliver performs a non-blocking send, dropping the oldest queued event
// and retrying once if the mailbox is full.
func (b *Bus) deliver(sub *subscriber, ev Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}

	select {
	case <-sub.ch:
		b.incDropped()
	default:
	}

	select {
	case sub.ch <- ev:
	default:
		b.incDropped()
	}
}

func (b *Bus) incDropped() {
	b.dropped.Add(1)
}

// DroppedCount returns the number of events dropped so far due to a full
// subscriber mailbox, exported as a metrics counter.
func (b *Bus) DroppedCount() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
