package stream

import (
	"fmt"
)

// ResponseKind names the operation a Response completes. Correlators match on it.
type ResponseKind int

const (
	KindServicesDiscovered ResponseKind = iota
	KindIncludedServicesDiscovered
	KindCharacteristicsDiscovered
	KindDescriptorsDiscovered
	KindCharacteristicWritten
	KindDescriptorUpdated
	KindDescriptorWritten
	KindNotificationStateChanged
	KindReadyToSendWithoutResponse
	KindRssiRead
)

var responseKindNames = map[ResponseKind]string{
	KindServicesDiscovered:         "services_discovered",
	KindIncludedServicesDiscovered: "included_services_discovered",
	KindCharacteristicsDiscovered:  "characteristics_discovered",
	KindDescriptorsDiscovered:      "descriptors_discovered",
	KindCharacteristicWritten:      "characteristic_written",
	KindDescriptorUpdated:          "descriptor_updated",
	KindDescriptorWritten:          "descriptor_written",
	KindNotificationStateChanged:   "notification_state_changed",
	KindReadyToSendWithoutResponse: "ready_to_send_without_response",
	KindRssiRead:                   "rssi_read",
}

func (k ResponseKind) String() string {
	if name, ok := responseKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("response_kind(%d)", int(k))
}

// ----------------------------
// Response
// ----------------------------

// Response is a one-shot completion of a caller-initiated operation.
//
// The set of implementations is closed; switch on the concrete type or on Kind.
type Response interface {
	Kind() ResponseKind
	PeripheralID() PeripheralID
	// Cause is the platform failure for the operation, nil on success
	Cause() error

	isResponse()
}

// Completion carries the fields shared by every Response variant
type Completion struct {
	Peripheral PeripheralID
	Err        error
}

func (c Completion) PeripheralID() PeripheralID { return c.Peripheral }
func (c Completion) Cause() error               { return c.Err }
func (Completion) isResponse()                  {}

type ServicesDiscovered struct {
	Completion
}

type IncludedServicesDiscovered struct {
	Completion
	Service Service
}

type CharacteristicsDiscovered struct {
	Completion
	Service Service
}

type DescriptorsDiscovered struct {
	Completion
	Characteristic Characteristic
}

type CharacteristicWritten struct {
	Completion
	Characteristic Characteristic
}

type DescriptorUpdated struct {
	Completion
	Descriptor Descriptor
}

type DescriptorWritten struct {
	Completion
	Descriptor Descriptor
}

type NotificationStateChanged struct {
	Completion
	Characteristic Characteristic
}

// ReadyToSendWithoutResponse signals the platform can accept another write-without-response.
// It never carries a cause.
type ReadyToSendWithoutResponse struct {
	Completion
}

type RssiRead struct {
	Completion
	RSSI int
}

func (ServicesDiscovered) Kind() ResponseKind         { return KindServicesDiscovered }
func (IncludedServicesDiscovered) Kind() ResponseKind { return KindIncludedServicesDiscovered }
func (CharacteristicsDiscovered) Kind() ResponseKind  { return KindCharacteristicsDiscovered }
func (DescriptorsDiscovered) Kind() ResponseKind      { return KindDescriptorsDiscovered }
func (CharacteristicWritten) Kind() ResponseKind      { return KindCharacteristicWritten }
func (DescriptorUpdated) Kind() ResponseKind          { return KindDescriptorUpdated }
func (DescriptorWritten) Kind() ResponseKind          { return KindDescriptorWritten }
func (NotificationStateChanged) Kind() ResponseKind   { return KindNotificationStateChanged }
func (ReadyToSendWithoutResponse) Kind() ResponseKind { return KindReadyToSendWithoutResponse }
func (RssiRead) Kind() ResponseKind                   { return KindRssiRead }

// Subject returns the attribute a response refers to ("" for peripheral-wide responses).
// Correlators use it together with Kind and PeripheralID.
func Subject(r Response) string {
	switch v := r.(type) {
	case IncludedServicesDiscovered:
		return v.Service.String()
	case CharacteristicsDiscovered:
		return v.Service.String()
	case DescriptorsDiscovered:
		return v.Characteristic.String()
	case CharacteristicWritten:
		return v.Characteristic.String()
	case DescriptorUpdated:
		return v.Descriptor.String()
	case DescriptorWritten:
		return v.Descriptor.String()
	case NotificationStateChanged:
		return v.Characteristic.String()
	default:
		return ""
	}
}

// ----------------------------
// CharacteristicChange
// ----------------------------

// CharacteristicChange is a broadcast event: a value update, a failed update,
// or the terminal Closed marker.
type CharacteristicChange interface {
	isCharacteristicChange()
}

// CharacteristicData is a successful value update. Value is owned by the event;
// consumers must not modify it.
type CharacteristicData struct {
	Characteristic Characteristic
	Value          []byte
}

// CharacteristicError is a failed value update
type CharacteristicError struct {
	Characteristic Characteristic
	Err            error
}

// Closed is the last event any subscriber observes
type Closed struct{}

func (CharacteristicData) isCharacteristicChange()  {}
func (CharacteristicError) isCharacteristicChange() {}
func (Closed) isCharacteristicChange()              {}

// newCharacteristicData copies value so no memory is shared with the native side
func newCharacteristicData(chr Characteristic, value []byte) CharacteristicData {
	owned := make([]byte, len(value))
	copy(owned, value)
	return CharacteristicData{Characteristic: chr, Value: owned}
}
