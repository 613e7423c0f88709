package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blestream/pkg/stream"
)

var (
	ErrBluetoothOff        = errors.New("bluetooth is turned off")
	ErrUnsupportedPlatform = errors.New("no BLE device support for this platform")
	ErrDriverClosed        = errors.New("driver closed")
	// ErrDisconnected is the cause recorded when the client reports a disconnect
	ErrDisconnected = errors.New("peripheral disconnected")
)

// NormalizeError maps go-ble error messages onto sentinel errors
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"),
		containsIgnoreCase(msg, "connection lost"):
		return fmt.Errorf("%w: %v", stream.ErrConnectionLost, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
