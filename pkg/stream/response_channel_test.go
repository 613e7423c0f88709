package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseChannel_FIFOAcrossVariants(t *testing.T) {
	ch := NewResponseChannel()
	chr := NewCharacteristic("180d", "2a37")

	in := []Response{
		ServicesDiscovered{Completion: Completion{Peripheral: "p1"}},
		CharacteristicWritten{Completion: Completion{Peripheral: "p1"}, Characteristic: chr},
		RssiRead{Completion: Completion{Peripheral: "p1"}, RSSI: -60},
		NotificationStateChanged{Completion: Completion{Peripheral: "p1"}, Characteristic: chr},
	}
	for _, r := range in {
		require.True(t, ch.Enqueue(r), "enqueue MUST succeed while open")
	}
	assert.Equal(t, len(in), ch.Len())

	ctx := context.Background()
	for i, want := range in {
		got, err := ch.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got, "response %d MUST come out in enqueue order", i)
	}
	assert.Equal(t, 0, ch.Len())
}

func TestResponseChannel_CloseDrainsThenFailsWithCause(t *testing.T) {
	ch := NewResponseChannel()
	ch.Enqueue(ServicesDiscovered{Completion: Completion{Peripheral: "p1"}})

	require.True(t, ch.Close(ErrConnectionLost))
	assert.False(t, ch.Close(errors.New("other")), "second close MUST be a no-op")
	assert.False(t, ch.Enqueue(RssiRead{}), "enqueue after close MUST be rejected")

	r, err := ch.Receive(context.Background())
	require.NoError(t, err, "buffered response MUST still be delivered after close")
	assert.Equal(t, KindServicesDiscovered, r.Kind())

	_, err = ch.Receive(context.Background())
	assert.ErrorIs(t, err, ErrConnectionLost, "drained closed channel MUST surface the closure cause")
	assert.ErrorIs(t, ch.Err(), ErrConnectionLost)

	_, ok, err := ch.TryReceive()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestResponseChannel_CloseNilCauseDefaultsToConnectionLost(t *testing.T) {
	ch := NewResponseChannel()
	assert.NoError(t, ch.Err(), "open channel MUST have no cause")

	ch.Close(nil)
	assert.ErrorIs(t, ch.Err(), ErrConnectionLost)
}

func TestResponseChannel_ReceiveBlocksUntilEnqueueOrClose(t *testing.T) {
	ch := NewResponseChannel()

	got := make(chan Response, 1)
	go func() {
		r, err := ch.Receive(context.Background())
		if err == nil {
			got <- r
		}
	}()

	time.Sleep(20 * time.Millisecond)
	ch.Enqueue(RssiRead{Completion: Completion{Peripheral: "p1"}, RSSI: -42})

	select {
	case r := <-got:
		assert.Equal(t, -42, r.(RssiRead).RSSI)
	case <-time.After(time.Second):
		t.Fatal("blocked receiver MUST wake up on enqueue")
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := ch.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	ch.Close(nil)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionLost, "blocked receiver MUST observe the close cause")
	case <-time.After(time.Second):
		t.Fatal("blocked receiver MUST wake up on close")
	}
}

func TestResponseChannel_ReceiveHonoursContext(t *testing.T) {
	ch := NewResponseChannel()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ch.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResponseChannel_ConcurrentProducersLoseNothing(t *testing.T) {
	ch := NewResponseChannel()
	const producers, perProducer = 8, 200

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ch.Enqueue(RssiRead{Completion: Completion{Peripheral: PeripheralID(rune('a' + p))}, RSSI: i})
			}
		}(p)
	}
	wg.Wait()
	ch.Close(nil)

	last := make(map[PeripheralID]int)
	count := 0
	for {
		r, err := ch.Receive(context.Background())
		if err != nil {
			require.ErrorIs(t, err, ErrConnectionLost)
			break
		}
		rssi := r.(RssiRead)
		prev, seen := last[rssi.Peripheral]
		if seen {
			assert.Greater(t, rssi.RSSI, prev, "per-producer order MUST be preserved")
		}
		last[rssi.Peripheral] = rssi.RSSI
		count++
	}
	assert.Equal(t, producers*perProducer, count, "every enqueued response MUST be received")
}
