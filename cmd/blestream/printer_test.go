package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/srg/blestream/internal/testutils"
	"github.com/srg/blestream/pkg/stream"
	"github.com/stretchr/testify/assert"
)

var printerChr = stream.NewCharacteristic("180d", "2a37")

func TestEventPrinter_Text(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf, formatText, false)

	p.Response(stream.CharacteristicWritten{
		Completion:     stream.Completion{Peripheral: "p1", Err: errors.New("write not permitted")},
		Characteristic: printerChr,
	})
	p.Response(stream.RssiRead{Completion: stream.Completion{Peripheral: "p1"}, RSSI: -70})
	p.Change("observer-1", stream.CharacteristicData{Characteristic: printerChr, Value: []byte{0xde, 0xad}})
	p.Change("observer-1", stream.CharacteristicError{
		Characteristic: printerChr,
		Err:            &stream.ContractViolationError{Characteristic: printerChr, Reason: stream.ErrMissingValue},
	})
	p.Change("observer-1", stream.Closed{})
	p.ResponsesEnded(stream.ErrConnectionLost)

	testutils.NewTextAsserter(t).Assert(buf.String(), `
[responses] characteristic_written 180d/2a37 peripheral=p1 error="write not permitted"
[responses] rssi_read rssi=-70 peripheral=p1
[observer-1] data 180d/2a37 dead
[observer-1] error 180d/2a37 error="contract violation: characteristic value missing"
[observer-1] closed
[responses] end error="connection lost"
`)
}

func TestEventPrinter_JSON(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf, formatJSON, true)

	p.Response(stream.ServicesDiscovered{Completion: stream.Completion{Peripheral: "p1"}})
	p.Change("observer-2", stream.CharacteristicData{Characteristic: printerChr, Value: []byte{}})
	p.Notice("connect", "watching")

	assert.NotContains(t, buf.String(), "\x1b[", "json output MUST never be colored")
	testutils.NewJSONAsserter(t, testutils.WithIgnoreExtraKeys(false)).AssertLines(buf.String(), `[
		{"source": "responses", "event": "services_discovered", "peripheral": "p1"},
		{"source": "observer-2", "event": "data", "subject": "180d/2a37"},
		{"source": "connect", "event": "notice", "value": "watching"}
	]`)
}

func TestEventPrinter_Colors(t *testing.T) {
	var buf bytes.Buffer
	newEventPrinter(&buf, formatText, true).Change("observer-1", stream.Closed{})

	out := buf.String()
	assert.Contains(t, out, "\x1b[", "colored text output MUST carry ANSI sequences")
	assert.Contains(t, out, "closed")
}

func TestEventPrinter_WholeLines(t *testing.T) {
	// GOAL: Verify concurrent writers never interleave within a line
	//
	// TEST SCENARIO: 4 goroutines × 100 changes → 400 well-formed lines

	var buf bytes.Buffer
	p := newEventPrinter(&buf, formatText, false)

	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		go func(name string) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				p.Change(name, stream.CharacteristicData{Characteristic: printerChr, Value: []byte{byte(i)}})
			}
		}(observerName(w + 1))
	}
	for w := 0; w < 4; w++ {
		<-done
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 400)
	for _, line := range lines {
		assert.Regexp(t, `^\[observer-\d\] data 180d/2a37 [0-9a-f]{2}$`, line)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}), "a buffer MUST NOT be treated as a terminal")
}
