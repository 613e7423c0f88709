package stream

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// noopLogger is a shared logger instance that discards all output.
// Used when no logger is provided to avoid allocating a new logger per adapter.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// MissingValuePolicy decides how a successful value update without a payload is handled
type MissingValuePolicy int

const (
	// SyntheticError broadcasts a CharacteristicError wrapping a *ContractViolationError
	SyntheticError MissingValuePolicy = iota
	// FailFast panics with a *ContractViolationError on the calling context
	FailFast
)

func (p MissingValuePolicy) String() string {
	switch p {
	case SyntheticError:
		return "synthetic-error"
	case FailFast:
		return "fail-fast"
	default:
		return fmt.Sprintf("missing_value_policy(%d)", int(p))
	}
}

// ParseMissingValuePolicy resolves the String form of a MissingValuePolicy
func ParseMissingValuePolicy(s string) (MissingValuePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "synthetic-error":
		return SyntheticError, nil
	case "fail-fast":
		return FailFast, nil
	default:
		return 0, fmt.Errorf("invalid missing value policy: %s (must be synthetic-error or fail-fast)", s)
	}
}

// Options configures an Adapter. The zero value is usable.
type Options struct {
	SubscriberBuffer int                // per-subscriber broadcast capacity (0 = DefaultSubscriberBuffer)
	JournalSize      int                // recent-event journal size (0 = disabled)
	MissingValue     MissingValuePolicy // handling of successful updates without a value
	Logger           *logrus.Logger     // nil = no logging
}

// Stats counts native events by what the adapter did with them
type Stats struct {
	Responses          uint64
	Changes            uint64
	Discarded          uint64
	ContractViolations uint64
}

// Adapter translates native peripheral callbacks into a Response channel and a
// CharacteristicChange broadcast. Create one per connection session.
//
// Handlers may be called from any goroutine and never block: every state
// transition is serialized by an internal mutex and every sink push is
// non-blocking. Events arriving after Close are discarded.
type Adapter struct {
	mu     sync.Mutex
	closed bool
	done   chan struct{}

	responses *ResponseChannel
	changes   *Broadcast
	journal   *journal
	policy    MissingValuePolicy
	logger    *logrus.Logger

	nResponses  atomic.Uint64
	nChanges    atomic.Uint64
	nDiscarded  atomic.Uint64
	nViolations atomic.Uint64
}

// NewAdapter creates an open adapter
func NewAdapter(opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &Adapter{
		done:      make(chan struct{}),
		responses: NewResponseChannel(),
		changes:   NewBroadcast(opts.SubscriberBuffer, logger),
		journal:   newJournal(opts.JournalSize),
		policy:    opts.MissingValue,
		logger:    logger,
	}
}

// Responses returns the single consumer handle of the response channel.
// Every call returns the same instance.
func (a *Adapter) Responses() *ResponseChannel {
	return a.responses
}

// Subscribe attaches a new observer of characteristic changes
func (a *Adapter) Subscribe() *Subscription {
	return a.changes.Subscribe()
}

// Deliver routes one native event to its sink according to the routing table.
func (a *Adapter) Deliver(ev NativeEvent) {
	rt, known := routes[ev.Kind]

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.nDiscarded.Add(1)
		a.journal.record(ev, rt.sink, OutcomeDiscarded)
		a.logger.WithFields(logrus.Fields{
			"kind":       ev.Kind,
			"peripheral": ev.Peripheral,
		}).Debug("Discarding native event received after close")
		return
	}

	if !known {
		a.nDiscarded.Add(1)
		a.journal.record(ev, SinkNone, OutcomeDiscarded)
		a.logger.WithField("kind", ev.Kind).Warn("Discarding native event of unknown kind")
		return
	}

	switch rt.sink {
	case SinkResponse:
		resp := rt.response(ev)
		if !a.responses.Enqueue(resp) {
			// the consumer closed the channel on its side
			a.nDiscarded.Add(1)
			a.journal.record(ev, SinkResponse, OutcomeDiscarded)
			a.logger.WithFields(logrus.Fields{
				"kind":       resp.Kind(),
				"peripheral": ev.Peripheral,
			}).Debug("Discarding response, channel closed by consumer")
			return
		}
		a.nResponses.Add(1)
		a.journal.record(ev, SinkResponse, OutcomeDelivered)
		a.logger.WithFields(logrus.Fields{
			"kind":       resp.Kind(),
			"peripheral": ev.Peripheral,
			"subject":    Subject(resp),
			"error":      resp.Cause(),
		}).Debug("Response enqueued")

	case SinkBroadcast:
		change, err := rt.change(ev)
		outcome := OutcomeDelivered
		if err != nil {
			outcome = OutcomeContractViolation
			change = a.contractViolation(ev, err)
		}
		a.changes.Emit(change)
		a.nChanges.Add(1)
		a.journal.record(ev, SinkBroadcast, outcome)
	}
}

// contractViolation applies the missing value policy; it returns the change to
// broadcast instead, or panics under FailFast.
func (a *Adapter) contractViolation(ev NativeEvent, err error) CharacteristicChange {
	a.nViolations.Add(1)
	a.logger.WithFields(logrus.Fields{
		"peripheral":     ev.Peripheral,
		"characteristic": ev.Characteristic,
		"policy":         a.policy,
	}).Error("Characteristic update reported success without a value")

	if a.policy == FailFast {
		panic(err)
	}
	return CharacteristicError{Characteristic: ev.Characteristic, Err: err}
}

// Close ends the session: the response channel is closed with ErrConnectionLost
// and a single Closed marker is broadcast. Returns true only for the call that
// performed the transition.
func (a *Adapter) Close() bool {
	return a.CloseWithCause(nil)
}

// CloseWithCause is Close with the platform's disconnect reason attached.
// The recorded cause matches both ErrConnectionLost and err with errors.Is.
func (a *Adapter) CloseWithCause(err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false
	}
	a.closed = true

	cause := connectionLost(err)
	a.responses.Close(cause)
	a.changes.Close()

	a.logger.WithFields(logrus.Fields{
		"cause":     cause,
		"responses": a.nResponses.Load(),
		"changes":   a.nChanges.Load(),
	}).Info("Peripheral adapter closed")
	close(a.done)
	return true
}

// Done is closed once the adapter is closed
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

// IsClosed reports whether Close was called
func (a *Adapter) IsClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Stats returns a snapshot of event counters
func (a *Adapter) Stats() Stats {
	return Stats{
		Responses:          a.nResponses.Load(),
		Changes:            a.nChanges.Load(),
		Discarded:          a.nDiscarded.Load(),
		ContractViolations: a.nViolations.Load(),
	}
}

// DrainJournal returns the recorded journal entries in order and clears them.
// Returns nil when the journal is disabled.
func (a *Adapter) DrainJournal() []JournalEntry {
	return a.journal.drain()
}

// JournalOverwritten returns how many journal entries were lost to overflow
func (a *Adapter) JournalOverwritten() int64 {
	return a.journal.lost()
}

// ----------------------------
// Native handler entry points
// ----------------------------

func (a *Adapter) DidDiscoverServices(p PeripheralID, err error) {
	a.Deliver(NativeEvent{Kind: EventServicesDiscovered, Peripheral: p, Err: err})
}

func (a *Adapter) DidDiscoverIncludedServices(p PeripheralID, svc Service, err error) {
	a.Deliver(NativeEvent{Kind: EventIncludedServicesDiscovered, Peripheral: p, Service: svc, Err: err})
}

func (a *Adapter) DidDiscoverCharacteristics(p PeripheralID, svc Service, err error) {
	a.Deliver(NativeEvent{Kind: EventCharacteristicsDiscovered, Peripheral: p, Service: svc, Err: err})
}

func (a *Adapter) DidDiscoverDescriptors(p PeripheralID, chr Characteristic, err error) {
	a.Deliver(NativeEvent{Kind: EventDescriptorsDiscovered, Peripheral: p, Characteristic: chr, Err: err})
}

// DidUpdateValueForCharacteristic covers both notification pushes and read completions.
// value is copied before it leaves the calling context.
func (a *Adapter) DidUpdateValueForCharacteristic(p PeripheralID, chr Characteristic, value []byte, err error) {
	a.Deliver(NativeEvent{Kind: EventCharacteristicValueUpdated, Peripheral: p, Characteristic: chr, Value: value, Err: err})
}

func (a *Adapter) DidUpdateValueForDescriptor(p PeripheralID, dsc Descriptor, err error) {
	a.Deliver(NativeEvent{Kind: EventDescriptorValueUpdated, Peripheral: p, Descriptor: dsc, Err: err})
}

func (a *Adapter) DidWriteValueForCharacteristic(p PeripheralID, chr Characteristic, err error) {
	a.Deliver(NativeEvent{Kind: EventCharacteristicWritten, Peripheral: p, Characteristic: chr, Err: err})
}

func (a *Adapter) DidWriteValueForDescriptor(p PeripheralID, dsc Descriptor, err error) {
	a.Deliver(NativeEvent{Kind: EventDescriptorWritten, Peripheral: p, Descriptor: dsc, Err: err})
}

func (a *Adapter) IsReadyToSendWriteWithoutResponse(p PeripheralID) {
	a.Deliver(NativeEvent{Kind: EventReadyToSendWithoutResponse, Peripheral: p})
}

func (a *Adapter) DidUpdateNotificationState(p PeripheralID, chr Characteristic, err error) {
	a.Deliver(NativeEvent{Kind: EventNotificationStateChanged, Peripheral: p, Characteristic: chr, Err: err})
}

func (a *Adapter) DidReadRSSI(p PeripheralID, rssi int, err error) {
	a.Deliver(NativeEvent{Kind: EventRSSIRead, Peripheral: p, RSSI: rssi, Err: err})
}
