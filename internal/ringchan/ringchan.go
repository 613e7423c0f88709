// Package ringchan provides a bounded channel-like buffer with overwrite-oldest
// semantics and a reserved terminal slot.
package ringchan

import (
	"context"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// It wraps an underlying buffered channel and ensures producers never block:
// if the buffer holds capacity items, the oldest one is discarded before the
// new one is inserted. One extra slot is kept free for Seal, so the terminal
// value never evicts an item that was already accepted.
//
// # Example
//
//	rc := ringchan.New[int](3)
//
//	// Writer: always succeeds, drops oldest if full.
//	for i := 0; i < 10; i++ {
//	    rc.Send(i)
//	}
//	rc.Seal(-1)
//
//	// Reader: acts like a normal Go channel.
//	for v := range rc.C() {
//	    fmt.Println("got:", v) // 7, 8, 9, -1
//	}
//
// Send and Seal must be serialized by the caller (single logical producer).
// Any number of readers may consume concurrently.
type RingChannel[T any] struct {
	ch       chan T
	capacity int
	sealed   atomic.Bool
	metrics  Metrics
}

// New creates a RingChannel holding up to capacity items plus the terminal slot.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{
		ch:       make(chan T, capacity+1),
		capacity: capacity,
	}
}

// C returns the underlying receive-only channel. It is closed after Seal or Close.
//
// WARNING: Reading from the returned channel bypasses the Processed metric.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest ones while the buffer is full.
// Returns the number of discarded items. After Seal or Close it is a no-op
// returning -1.
func (rc *RingChannel[T]) Send(v T) int {
	if rc.sealed.Load() {
		return -1
	}

	dropped := 0
	for len(rc.ch) >= rc.capacity {
		select {
		case <-rc.ch:
			dropped++
		default:
			// a reader got there first
		}
	}
	if dropped > 0 {
		rc.metrics.addOverwritten(dropped)
	}

	rc.ch <- v
	rc.metrics.addWritten(1)
	return dropped
}

// Seal enqueues a final value into the reserved slot and closes the channel.
// Only the first Seal or Close has an effect; returns true if this call sealed.
func (rc *RingChannel[T]) Seal(v T) bool {
	if !rc.sealed.CompareAndSwap(false, true) {
		return false
	}
	rc.ch <- v
	rc.metrics.addWritten(1)
	close(rc.ch)
	return true
}

// Close closes the channel without a terminal value. Buffered items stay readable.
func (rc *RingChannel[T]) Close() bool {
	if !rc.sealed.CompareAndSwap(false, true) {
		return false
	}
	close(rc.ch)
	return true
}

// Sealed reports whether Seal or Close was called.
func (rc *RingChannel[T]) Sealed() bool {
	return rc.sealed.Load()
}

// Receive blocks until a value is available or the channel is closed and drained.
// The ok result is false once nothing more will ever be delivered.
func (rc *RingChannel[T]) Receive() (v T, ok bool) {
	v, ok = <-rc.ch
	if ok {
		rc.metrics.addProcessed(1)
	}
	return
}

// ReceiveContext is Receive bounded by ctx. err is ctx.Err() when ctx ends first.
func (rc *RingChannel[T]) ReceiveContext(ctx context.Context) (v T, ok bool, err error) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.metrics.addProcessed(1)
		}
		return v, ok, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// TryReceive attempts a non-blocking receive.
// Returns (zero, false) if no value is ready.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.metrics.addProcessed(1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Drain discards every buffered item without blocking and returns how many were dropped.
func (rc *RingChannel[T]) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-rc.ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the data capacity, excluding the terminal slot.
func (rc *RingChannel[T]) Cap() int {
	return rc.capacity
}

// GetMetrics returns a snapshot of current metrics values.
// All reads are atomic and thread-safe.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&rc.metrics.Processed),
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics provides lock-free metrics tracking for RingChannel.
//
// Processed is only incremented by Receive and TryReceive.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

func (m *Metrics) addProcessed(n int) {
	atomic.AddInt64(&m.Processed, int64(n))
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}
