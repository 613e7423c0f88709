package stream

import (
	"context"
	"errors"

	"github.com/srg/blestream/internal/ringchan"
)

// ErrSubscriptionDone is returned by Subscription.Receive once the stream has ended,
// either after Closed was delivered or after Cancel.
var ErrSubscriptionDone = errors.New("subscription done")

// Subscription is one observer's view of a Broadcast
type Subscription struct {
	id    uint64
	ring  *ringchan.RingChannel[CharacteristicChange]
	owner *Broadcast
}

// SubscriptionMetrics counts what happened to changes routed to one subscriber
type SubscriptionMetrics struct {
	Delivered int64 // accepted into the buffer, including Closed
	Dropped   int64 // evicted by the drop-oldest policy
	Consumed  int64 // taken through Receive/TryReceive
}

// ID is unique among subscriptions of the same broadcast
func (s *Subscription) ID() uint64 {
	return s.id
}

// C returns the change stream. It ends (is closed) right after Closed, or on Cancel.
func (s *Subscription) C() <-chan CharacteristicChange {
	return s.ring.C()
}

// Receive blocks for the next change. After the stream ended it returns ErrSubscriptionDone.
func (s *Subscription) Receive(ctx context.Context) (CharacteristicChange, error) {
	change, ok, err := s.ring.ReceiveContext(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSubscriptionDone
	}
	return change, nil
}

// TryReceive returns the next buffered change without blocking
func (s *Subscription) TryReceive() (CharacteristicChange, bool) {
	return s.ring.TryReceive()
}

// Cancel detaches the subscription and releases its buffer. The stream ends
// without a Closed marker. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.owner.detach(s)
}

// Buffered returns the number of changes waiting to be received
func (s *Subscription) Buffered() int {
	return s.ring.Len()
}

// Metrics returns a snapshot of this subscriber's counters
func (s *Subscription) Metrics() SubscriptionMetrics {
	m := s.ring.GetMetrics()
	return SubscriptionMetrics{
		Delivered: m.Written,
		Dropped:   m.Overwritten,
		Consumed:  m.Processed,
	}
}
