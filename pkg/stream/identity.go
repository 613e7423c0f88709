package stream

import (
	"strings"
)

// PeripheralID identifies the remote device. Opaque and stable for one connection.
type PeripheralID string

// UUID is a GATT attribute UUID in normalized form (lowercase, no dashes)
type UUID string

// NormalizeUUID converts a UUID string to the normalized form (lowercase, no dashes).
// Handles both standard UUID format (with dashes) and already normalized format.
func NormalizeUUID(uuid string) UUID {
	return UUID(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(uuid), "-", "")))
}

// Service identifies a GATT service
type Service struct {
	UUID UUID
}

func (s Service) String() string {
	return string(s.UUID)
}

// Characteristic identifies a characteristic within its service
type Characteristic struct {
	Service UUID
	UUID    UUID
}

// NewCharacteristic builds a Characteristic from raw service and characteristic UUID strings
func NewCharacteristic(service, uuid string) Characteristic {
	return Characteristic{Service: NormalizeUUID(service), UUID: NormalizeUUID(uuid)}
}

func (c Characteristic) String() string {
	return string(c.Service) + "/" + string(c.UUID)
}

// ParseCharacteristic parses the "service/characteristic" form produced by String.
func ParseCharacteristic(s string) (Characteristic, bool) {
	svc, chr, ok := strings.Cut(s, "/")
	if !ok || svc == "" || chr == "" || strings.Contains(chr, "/") {
		return Characteristic{}, false
	}
	return NewCharacteristic(svc, chr), true
}

// Descriptor identifies a descriptor attached to a characteristic
type Descriptor struct {
	Characteristic Characteristic
	UUID           UUID
}

func (d Descriptor) String() string {
	return d.Characteristic.String() + "/" + string(d.UUID)
}
