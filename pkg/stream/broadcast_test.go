package stream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, sub *Subscription) []CharacteristicChange {
	t.Helper()
	var out []CharacteristicChange
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatalf("subscription %d did not end, got %d changes", sub.ID(), len(out))
			return out
		}
	}
}

func data(chr Characteristic, b ...byte) CharacteristicData {
	return newCharacteristicData(chr, b)
}

func TestBroadcast_FanOutWithoutReplay(t *testing.T) {
	b := NewBroadcast(0, nil)
	chr := NewCharacteristic("180d", "2a37")

	subs := []*Subscription{b.Subscribe(), b.Subscribe(), b.Subscribe()}
	assert.Equal(t, 3, b.Len())

	require.True(t, b.Emit(data(chr, 0x01)))
	late := b.Subscribe()
	require.True(t, b.Emit(data(chr, 0x02)))
	b.Close()

	for _, s := range subs {
		assert.Equal(t, []CharacteristicChange{data(chr, 0x01), data(chr, 0x02), Closed{}}, drain(t, s))
	}
	assert.Equal(t, []CharacteristicChange{data(chr, 0x02), Closed{}}, drain(t, late),
		"late subscriber MUST NOT see changes emitted before it subscribed")
}

func TestBroadcast_DropOldestPerSubscriber(t *testing.T) {
	b := NewBroadcast(4, nil)
	chr := NewCharacteristic("180d", "2a37")

	slow := b.Subscribe()
	fast := b.Subscribe()

	var fastGot []CharacteristicChange
	for i := 0; i < 10; i++ {
		b.Emit(data(chr, byte(i)))
		c, ok := fast.TryReceive()
		require.True(t, ok, "fast subscriber MUST see every change")
		fastGot = append(fastGot, c)
	}
	b.Close()

	assert.Len(t, fastGot, 10)
	assert.Equal(t, []CharacteristicChange{
		data(chr, 6), data(chr, 7), data(chr, 8), data(chr, 9), Closed{},
	}, drain(t, slow), "slow subscriber MUST keep the newest changes and still end with Closed")

	m := slow.Metrics()
	assert.Equal(t, int64(6), m.Dropped)
	assert.Equal(t, int64(11), m.Delivered)
	assert.Equal(t, int64(0), fast.Metrics().Dropped)
}

func TestBroadcast_CloseIsIdempotentAndTerminal(t *testing.T) {
	b := NewBroadcast(8, nil)
	sub := b.Subscribe()

	assert.True(t, b.Close())
	assert.False(t, b.Close(), "second close MUST be a no-op")
	assert.False(t, b.Emit(data(NewCharacteristic("1", "2"), 1)), "emit after close MUST be rejected")
	assert.False(t, b.Emit(Closed{}), "emitting Closed again MUST NOT re-close")
	assert.True(t, b.Closed())
	assert.Equal(t, 0, b.Len())

	assert.Equal(t, []CharacteristicChange{Closed{}}, drain(t, sub), "exactly one Closed MUST be observed")

	_, err := sub.Receive(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionDone)
}

func TestBroadcast_SubscribeAfterClose(t *testing.T) {
	b := NewBroadcast(8, nil)
	b.Close()

	sub := b.Subscribe()
	c, err := sub.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Closed{}, c, "subscription created after close MUST observe Closed")

	_, err = sub.Receive(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionDone, "nothing MUST follow Closed")
}

func TestBroadcast_CancelDetaches(t *testing.T) {
	b := NewBroadcast(8, nil)
	chr := NewCharacteristic("180f", "2a19")

	keep := b.Subscribe()
	gone := b.Subscribe()
	b.Emit(data(chr, 1))

	gone.Cancel()
	gone.Cancel()
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 0, gone.Buffered(), "cancel MUST release buffered changes")

	b.Emit(data(chr, 2))
	b.Close()

	assert.Empty(t, drain(t, gone), "cancelled subscription MUST end without Closed")
	assert.Equal(t, []CharacteristicChange{data(chr, 1), data(chr, 2), Closed{}}, drain(t, keep))
}

func TestBroadcast_ClosedIsLastUnderConcurrentEmit(t *testing.T) {
	b := NewBroadcast(DefaultSubscriberBuffer, nil)
	chr := NewCharacteristic("180d", "2a37")

	subs := make([]*Subscription, 4)
	for i := range subs {
		subs[i] = b.Subscribe()
	}

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				b.Emit(data(chr, byte(p), byte(i)))
			}
		}(p)
	}
	time.Sleep(time.Millisecond)
	b.Close()
	wg.Wait()

	for _, s := range subs {
		got := drain(t, s)
		require.NotEmpty(t, got)
		closedCount := 0
		for _, c := range got {
			if _, ok := c.(Closed); ok {
				closedCount++
			}
		}
		assert.Equal(t, 1, closedCount, "subscriber %d MUST see exactly one Closed", s.ID())
		assert.Equal(t, Closed{}, got[len(got)-1], fmt.Sprintf("Closed MUST be last for subscriber %d", s.ID()))
	}
}
