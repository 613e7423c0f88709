package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionLost is the terminal cause recorded when the adapter is closed.
	// Receivers observe it once every buffered response has been consumed.
	ErrConnectionLost = errors.New("connection lost")

	// ErrMissingValue marks a value-update event that reported success without a payload
	ErrMissingValue = errors.New("characteristic value missing")
)

// ContractViolationError reports a native event that broke the platform contract,
// e.g. a successful characteristic update with no value attached.
type ContractViolationError struct {
	Peripheral     PeripheralID
	Characteristic Characteristic
	Reason         error
}

func (e *ContractViolationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("platform contract violation on %s (peripheral %s): %v", e.Characteristic, e.Peripheral, e.Reason)
}

// Unwrap exposes the violated invariant, so errors.Is(err, ErrMissingValue) holds
func (e *ContractViolationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Reason
}

// NotFoundError represents an operation against a GATT attribute that was never discovered
type NotFoundError struct {
	Resource string // "service", "characteristic", "descriptor"
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// connectionLost builds the closure cause for a platform-reported disconnect.
// The result matches both ErrConnectionLost and err with errors.Is.
func connectionLost(err error) error {
	switch {
	case err == nil:
		return ErrConnectionLost
	case errors.Is(err, ErrConnectionLost):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
}
