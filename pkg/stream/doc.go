// Package stream adapts a callback-style BLE peripheral event source into
// consumable Go streams.
//
// Every completed operation reported by the platform (service or characteristic
// discovery, characteristic or descriptor write, descriptor update, notification
// state change, RSSI read, write-without-response readiness) becomes exactly one
// Response on an ordered, single-consumer ResponseChannel that a correlator
// matches against its outstanding requests.
//
// Every characteristic value update, whether pushed by a notification or produced
// by a read, becomes exactly one CharacteristicChange on a Broadcast with any
// number of independently buffered subscribers.
//
// Closing the Adapter closes the response channel with ErrConnectionLost and
// delivers a single Closed marker to every subscriber as its last event.
//
// The package carries payloads as opaque bytes and never interprets them.
package stream
