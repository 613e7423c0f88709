package stream

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// Outcome records what the adapter did with a native event
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeDiscarded
	OutcomeContractViolation
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeContractViolation:
		return "contract_violation"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// JournalEntry describes one native event handled by the adapter
type JournalEntry struct {
	Seq        uint64
	At         time.Time
	Kind       EventKind
	Peripheral PeripheralID
	Subject    string
	Sink       Sink
	Outcome    Outcome
}

// journal keeps the most recent entries, overwriting the oldest when full
type journal struct {
	buffer      mpmc.RichOverlappedRingBuffer[JournalEntry]
	seq         uint64
	overwritten int64
}

// MaxJournalSize guards against accidental misconfiguration
const MaxJournalSize uint32 = 64 * 1024

func newJournal(size int) *journal {
	if size <= 0 {
		return nil
	}
	capacity := uint32(size)
	if capacity > MaxJournalSize {
		capacity = MaxJournalSize
	}
	return &journal{buffer: mpmc.NewOverlappedRingBuffer[JournalEntry](capacity)}
}

func (j *journal) record(ev NativeEvent, sink Sink, outcome Outcome) {
	if j == nil {
		return
	}
	entry := JournalEntry{
		Seq:        atomic.AddUint64(&j.seq, 1),
		At:         time.Now(),
		Kind:       ev.Kind,
		Peripheral: ev.Peripheral,
		Subject:    ev.subject(),
		Sink:       sink,
		Outcome:    outcome,
	}
	// Enqueue only fails on a closed buffer, which the journal never closes
	if overwrites, err := j.buffer.EnqueueM(entry); err == nil && overwrites > 0 {
		atomic.AddInt64(&j.overwritten, int64(overwrites))
	}
}

func (j *journal) drain() []JournalEntry {
	if j == nil {
		return nil
	}
	var out []JournalEntry
	for !j.buffer.IsEmpty() {
		entry, err := j.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, entry)
	}
	return out
}

func (j *journal) lost() int64 {
	if j == nil {
		return 0
	}
	return atomic.LoadInt64(&j.overwritten)
}
