package replay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/srg/blestream/internal/testutils"
	"github.com/srg/blestream/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	sc, err := Load("testdata/" + name)
	require.NoError(t, err)
	return sc
}

func collect(t *testing.T, sub *stream.Subscription) []stream.CharacteristicChange {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out []stream.CharacteristicChange
	for {
		c, err := sub.Receive(ctx)
		if errors.Is(err, stream.ErrSubscriptionDone) {
			return out
		}
		require.NoError(t, err)
		out = append(out, c)
	}
}

func TestParse_HeartRateScenario(t *testing.T) {
	sc := loadTestdata(t, "heart_rate.yaml")

	assert.Equal(t, "heart rate notifications", sc.Name)
	require.Len(t, sc.Actions(), 10)
	assert.True(t, sc.ClosesAdapter())

	first := sc.Actions()[0].Event
	assert.Equal(t, stream.EventServicesDiscovered, first.Kind)
	assert.Equal(t, stream.PeripheralID("A1B2C3D4-0000-1111-2222-333344445555"), first.Peripheral)

	update := sc.Actions()[3].Event
	assert.Equal(t, stream.EventCharacteristicValueUpdated, update.Kind)
	assert.Equal(t, stream.NewCharacteristic("180d", "2a37"), update.Characteristic)
	assert.Equal(t, []byte{0x00, 0x48}, update.Value)

	failed := sc.Actions()[6].Event
	assert.EqualError(t, failed.Err, "insufficient authentication")

	closing := sc.Actions()[8]
	assert.True(t, closing.Close)
	assert.EqualError(t, closing.Cause, "supervision timeout")
}

func TestParse_ValueForms(t *testing.T) {
	sc := loadTestdata(t, "missing_value.yaml")

	assert.Nil(t, sc.Actions()[0].Event.Value, "omitted value MUST stay nil")
	assert.NotNil(t, sc.Actions()[1].Event.Value, "empty value MUST be an empty payload")
	assert.Empty(t, sc.Actions()[1].Event.Value)
	assert.Equal(t, DefaultPeripheral, sc.Actions()[0].Event.Peripheral)
	assert.False(t, sc.ClosesAdapter())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		index  int
		errMsg string
	}{
		{name: "unknown kind", yaml: "events:\n  - kind: teleported\n", index: 0, errMsg: "unknown event kind"},
		{name: "bad characteristic", yaml: "events:\n  - kind: characteristic_written\n    characteristic: 2a37\n", index: 0, errMsg: "invalid characteristic"},
		{name: "missing characteristic", yaml: "events:\n  - kind: rssi_read\n  - kind: characteristic_written\n", index: 1, errMsg: "requires characteristic"},
		{name: "missing service", yaml: "events:\n  - kind: characteristics_discovered\n", index: 0, errMsg: "requires service"},
		{name: "bad descriptor", yaml: "events:\n  - kind: descriptor_written\n    descriptor: 2902\n", index: 0, errMsg: "invalid descriptor"},
		{name: "bad hex", yaml: "events:\n  - kind: characteristic_value_updated\n    characteristic: 180d/2a37\n    value: zz\n", index: 0, errMsg: "invalid hex"},
		{name: "close with kind", yaml: "events:\n  - kind: rssi_read\n    close: true\n", index: 0, errMsg: "close step"},
		{name: "negative delay", yaml: "events:\n  - kind: rssi_read\n    delay: -1s\n", index: 0, errMsg: "negative delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr, "invalid step MUST be reported as StepError")
			assert.Equal(t, tt.index, stepErr.Index)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("no events", func(t *testing.T) {
		_, err := Parse([]byte("name: empty\n"))
		assert.ErrorIs(t, err, ErrEmptyScenario)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte("events: [\n"))
		assert.Error(t, err)
	})
}

func TestPlay_HeartRateScenario(t *testing.T) {
	// GOAL: Verify a replayed trace reaches both sinks in order and stops at the scripted close
	//
	// TEST SCENARIO: Replay heart_rate.yaml → 5 responses then ErrConnectionLost → subscriber sees D, D, Error, Closed

	sc := loadTestdata(t, "heart_rate.yaml")
	helper := testutils.NewTestHelper(t)
	adapter := stream.NewAdapter(stream.Options{JournalSize: 16, Logger: helper.Logger})
	sub := adapter.Subscribe()

	require.NoError(t, Play(context.Background(), sc, adapter, helper.Logger))
	require.True(t, adapter.IsClosed(), "scripted close MUST close the adapter")

	var kinds []stream.ResponseKind
	for {
		r, err := adapter.Responses().Receive(context.Background())
		if err != nil {
			assert.ErrorIs(t, err, stream.ErrConnectionLost)
			assert.ErrorContains(t, err, "supervision timeout", "scripted cause MUST be attached")
			break
		}
		kinds = append(kinds, r.Kind())
	}
	assert.Equal(t, []stream.ResponseKind{
		stream.KindServicesDiscovered,
		stream.KindCharacteristicsDiscovered,
		stream.KindNotificationStateChanged,
		stream.KindCharacteristicWritten,
		stream.KindRssiRead,
	}, kinds)

	changes := collect(t, sub)
	require.Len(t, changes, 4)
	assert.Equal(t, stream.CharacteristicData{Characteristic: stream.NewCharacteristic("180d", "2a37"), Value: []byte{0x00, 0x48}}, changes[0])
	assert.Equal(t, stream.CharacteristicData{Characteristic: stream.NewCharacteristic("180d", "2a37"), Value: []byte{0x00, 0x49}}, changes[1])
	assert.IsType(t, stream.CharacteristicError{}, changes[2])
	assert.Equal(t, stream.Closed{}, changes[3], "event after the scripted close MUST NOT be delivered")

	assert.Equal(t, uint64(1), adapter.Stats().Discarded)
}

func TestPlay_Cancelled(t *testing.T) {
	sc, err := Parse([]byte("events:\n  - kind: rssi_read\n    delay: 1h\n"))
	require.NoError(t, err)

	adapter := stream.NewAdapter(stream.Options{})
	defer adapter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = Play(ctx, sc, adapter, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(0), adapter.Stats().Responses, "cancelled replay MUST NOT deliver pending steps")
}

func TestPlay_WithoutLogger(t *testing.T) {
	// GOAL: Verify Play runs without a logger and shares one discarding fallback
	//
	// TEST SCENARIO: Replay heart_rate.yaml twice with a nil logger → both replays close their adapter

	sc := loadTestdata(t, "heart_rate.yaml")
	for i := 0; i < 2; i++ {
		adapter := stream.NewAdapter(stream.Options{})
		require.NoError(t, Play(context.Background(), sc, adapter, nil))
		assert.True(t, adapter.IsClosed(), "scripted close MUST close the adapter")
	}
	assert.Equal(t, io.Discard, noopLogger.Out, "fallback logger MUST discard output")
}
