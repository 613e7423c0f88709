package stream

import (
	"context"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ResponseChannel delivers one-shot completions to a single consumer in FIFO order.
//
// The producer side never blocks: pending responses are kept in an ordered,
// sequence-keyed queue that grows as needed. Close records a cause that
// Receive returns once every buffered response has been consumed.
type ResponseChannel struct {
	mu      sync.Mutex
	pending *orderedmap.OrderedMap[uint64, Response]
	nextSeq uint64
	closed  bool
	cause   error

	ready chan struct{} // capacity 1, pulsed on every enqueue
	done  chan struct{} // closed on Close
}

// NewResponseChannel creates an open, empty channel
func NewResponseChannel() *ResponseChannel {
	return &ResponseChannel{
		pending: orderedmap.New[uint64, Response](),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Enqueue appends r. Returns false, dropping r, if the channel is closed.
func (c *ResponseChannel) Enqueue(r Response) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.pending.Set(c.nextSeq, r)
	c.nextSeq++
	c.mu.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
		// consumer already has a pending wake-up
	}
	return true
}

// Receive returns the next response in order. It blocks until one is available,
// the context is done, or the channel is closed and drained, in which case the
// closure cause is returned.
func (c *ResponseChannel) Receive(ctx context.Context) (Response, error) {
	for {
		r, ok, err := c.TryReceive()
		if ok || err != nil {
			return r, err
		}

		select {
		case <-c.ready:
		case <-c.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryReceive is the non-blocking form of Receive. ok is false when nothing is buffered;
// err is the closure cause once the channel is closed and drained.
func (c *ResponseChannel) TryReceive() (r Response, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if oldest := c.pending.Oldest(); oldest != nil {
		c.pending.Delete(oldest.Key)
		return oldest.Value, true, nil
	}
	if c.closed {
		return nil, false, c.cause
	}
	return nil, false, nil
}

// Close transitions the channel to closed with the given cause (ErrConnectionLost if nil).
// Only the first call has an effect; it returns true if this call closed the channel.
func (c *ResponseChannel) Close(cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if cause == nil {
		cause = ErrConnectionLost
	}
	c.closed = true
	c.cause = cause
	close(c.done)
	return true
}

// Err returns the closure cause, or nil while the channel is open
func (c *ResponseChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Len returns the number of buffered responses
func (c *ResponseChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}
