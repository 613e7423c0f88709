package stream

import (
	"fmt"
	"strings"
)

// EventKind enumerates the native peripheral callbacks the adapter understands
type EventKind int

const (
	EventServicesDiscovered EventKind = iota
	EventIncludedServicesDiscovered
	EventCharacteristicsDiscovered
	EventDescriptorsDiscovered
	EventCharacteristicValueUpdated
	EventDescriptorValueUpdated
	EventCharacteristicWritten
	EventDescriptorWritten
	EventReadyToSendWithoutResponse
	EventNotificationStateChanged
	EventRSSIRead
)

var eventKindNames = map[EventKind]string{
	EventServicesDiscovered:         "services_discovered",
	EventIncludedServicesDiscovered: "included_services_discovered",
	EventCharacteristicsDiscovered:  "characteristics_discovered",
	EventDescriptorsDiscovered:      "descriptors_discovered",
	EventCharacteristicValueUpdated: "characteristic_value_updated",
	EventDescriptorValueUpdated:     "descriptor_value_updated",
	EventCharacteristicWritten:      "characteristic_written",
	EventDescriptorWritten:          "descriptor_written",
	EventReadyToSendWithoutResponse: "ready_to_send_without_response",
	EventNotificationStateChanged:   "notification_state_changed",
	EventRSSIRead:                   "rssi_read",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event_kind(%d)", int(k))
}

// ParseEventKind resolves the String form of an EventKind (case-insensitive)
func ParseEventKind(name string) (EventKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for kind, n := range eventKindNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// Sink is the destination of a routed event
type Sink int

const (
	SinkNone Sink = iota
	SinkResponse
	SinkBroadcast
)

func (s Sink) String() string {
	switch s {
	case SinkResponse:
		return "response"
	case SinkBroadcast:
		return "broadcast"
	default:
		return "none"
	}
}

// NativeEvent is one platform callback invocation. Only the fields relevant to
// Kind are read; Err is the optional platform failure.
type NativeEvent struct {
	Kind           EventKind
	Peripheral     PeripheralID
	Service        Service
	Characteristic Characteristic
	Descriptor     Descriptor
	Value          []byte
	RSSI           int
	Err            error
}

func (ev NativeEvent) completion() Completion {
	return Completion{Peripheral: ev.Peripheral, Err: ev.Err}
}

func (ev NativeEvent) subject() string {
	switch ev.Kind {
	case EventIncludedServicesDiscovered, EventCharacteristicsDiscovered:
		return ev.Service.String()
	case EventDescriptorsDiscovered, EventCharacteristicValueUpdated, EventCharacteristicWritten, EventNotificationStateChanged:
		return ev.Characteristic.String()
	case EventDescriptorValueUpdated, EventDescriptorWritten:
		return ev.Descriptor.String()
	default:
		return ""
	}
}

// route binds an event kind to its sink and message builder.
// Exactly one of response or change is set, matching sink.
type route struct {
	sink     Sink
	response func(NativeEvent) Response
	change   func(NativeEvent) (CharacteristicChange, error)
}

// routes is the routing table. Completions of caller-initiated one-shot requests go
// to the response channel; value updates (notifications and read completions alike)
// go to the broadcast, since any number of observers may care about them.
var routes = map[EventKind]route{
	EventServicesDiscovered: {sink: SinkResponse, response: func(ev NativeEvent) Response {
		return ServicesDiscovered{Completion: ev.completion()}
	}},
	EventIncludedServicesDiscovered: {sink: SinkResponse, response: func(ev NativeEvent) Response {
		return IncludedServicesDiscovered{Completion: ev.completion(), Service: ev.Service}
	}},
	EventCharacteristicsDiscovered: {sink: SinkResponse, response: func(ev NativeEvent) Response {
		return CharacteristicsDiscovered{Completion: ev.completion(), Service: ev.Service}
	}},
	EventDescriptorsDiscovered: {sink: SinkResponse, response: func(ev NativeEvent) Response {
		return DescriptorsDiscovered{Completion: ev.completion(), Characteristic: ev.Characteristic}
	}},
	EventCharacteristicValueUpdated: {sink: SinkBroadcast, change: characteristicChange},
	EventDescriptorValueUpdated: {sink: SinkResponse, response: func(ev NativeEvent) Response {
		return DescriptorUpdated{Completion: ev.completion(), Descriptor: ev.Descriptor}
	}},
	EventCharacteristicWritten: {sink: SinkResponse, response: func(ev NativeEvent) Response {
		return CharacteristicWritten{Completion: ev.completion(), Characteristic: ev.Characteristic}
	}},
	EventDescriptorWritten: {sink: SinkResponse, response: func(ev NativeEvent) Response {
		return DescriptorWritten{Completion: ev.completion(), Descriptor: ev.Descriptor}
	}},
	EventReadyToSendWithoutResponse: {sink: SinkResponse, response: func(ev NativeEvent) Response {
		return ReadyToSendWithoutResponse{Completion: Completion{Peripheral: ev.Peripheral}}
	}},
	EventNotificationStateChanged: {sink: SinkResponse, response: func(ev NativeEvent) Response {
		return NotificationStateChanged{Completion: ev.completion(), Characteristic: ev.Characteristic}
	}},
	EventRSSIRead: {sink: SinkResponse, response: func(ev NativeEvent) Response {
		return RssiRead{Completion: ev.completion(), RSSI: ev.RSSI}
	}},
}

// SinkFor returns where events of the given kind are routed (SinkNone if unknown)
func SinkFor(kind EventKind) Sink {
	return routes[kind].sink
}

// characteristicChange maps a value update to exactly one of Data or Error.
// A success without a value is a platform contract violation.
func characteristicChange(ev NativeEvent) (CharacteristicChange, error) {
	if ev.Err != nil {
		return CharacteristicError{Characteristic: ev.Characteristic, Err: ev.Err}, nil
	}
	if ev.Value == nil {
		return nil, &ContractViolationError{
			Peripheral:     ev.Peripheral,
			Characteristic: ev.Characteristic,
			Reason:         ErrMissingValue,
		}
	}
	return newCharacteristicData(ev.Characteristic, ev.Value), nil
}
