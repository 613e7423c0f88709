package stream

import (
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/ringchan"
)

// DefaultSubscriberBuffer is the per-subscriber capacity used when none is configured
const DefaultSubscriberBuffer = 64

// Broadcast fans characteristic changes out to any number of subscribers.
//
// Every subscriber owns a bounded ring. When a slow subscriber's ring is full the
// oldest buffered change for that subscriber is dropped (a newer value supersedes
// a stale one); neither the producer nor other subscribers are slowed down.
//
// Emit, Subscribe and Close are serialized, so Closed is always the last event a
// subscriber observes and no event follows it.
type Broadcast struct {
	mu       sync.Mutex
	subs     *hashmap.Map[uint64, *Subscription]
	nextID   uint64
	capacity int
	closed   bool
	logger   *logrus.Logger
}

// NewBroadcast creates a broadcast whose subscribers buffer up to capacity changes.
// A non-positive capacity selects DefaultSubscriberBuffer; a nil logger disables logging.
func NewBroadcast(capacity int, logger *logrus.Logger) *Broadcast {
	if capacity <= 0 {
		capacity = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = noopLogger
	}
	return &Broadcast{
		subs:     hashmap.New[uint64, *Subscription](),
		capacity: capacity,
		logger:   logger,
	}
}

// Subscribe returns a new subscription that observes changes emitted from now on.
// On a closed broadcast the subscription yields a single Closed and ends.
func (b *Broadcast) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:    b.nextID,
		ring:  ringchan.New[CharacteristicChange](b.capacity),
		owner: b,
	}

	if b.closed {
		sub.ring.Seal(Closed{})
		return sub
	}

	b.subs.Set(sub.id, sub)
	b.logger.WithFields(logrus.Fields{
		"subscription": sub.id,
		"subscribers":  b.subs.Len(),
	}).Debug("Broadcast subscriber attached")
	return sub
}

// Emit delivers change to every current subscriber without blocking.
// Emitting Closed is equivalent to Close. Returns false if the broadcast is closed.
func (b *Broadcast) Emit(change CharacteristicChange) bool {
	if _, ok := change.(Closed); ok {
		return b.Close()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	b.subs.Range(func(id uint64, sub *Subscription) bool {
		if dropped := sub.ring.Send(change); dropped > 0 {
			b.logger.WithFields(logrus.Fields{
				"subscription": id,
				"dropped":      dropped,
			}).Debug("Subscriber buffer full, dropped oldest change")
		}
		return true
	})
	return true
}

// Close seals every subscriber with exactly one Closed marker.
// Only the first call has an effect; it returns true if this call closed the broadcast.
func (b *Broadcast) Close() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	b.closed = true

	ids := make([]uint64, 0, b.subs.Len())
	b.subs.Range(func(id uint64, sub *Subscription) bool {
		sub.ring.Seal(Closed{})
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		b.subs.Del(id)
	}

	b.logger.WithField("subscribers", len(ids)).Debug("Broadcast closed")
	return true
}

// Closed reports whether Close was called
func (b *Broadcast) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of attached subscribers
func (b *Broadcast) Len() int {
	return b.subs.Len()
}

func (b *Broadcast) detach(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs.Get(sub.id); !ok {
		return
	}
	b.subs.Del(sub.id)
	sub.ring.Close()
	sub.ring.Drain()

	b.logger.WithField("subscription", sub.id).Debug("Broadcast subscriber detached")
}
