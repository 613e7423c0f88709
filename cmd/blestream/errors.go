package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/srg/blestream/internal/replay"
	"github.com/srg/blestream/pkg/stream"
	"github.com/srg/blestream/pkg/stream/goble"
)

// FormatUserError turns an error chain into a one-line message for the terminal
func FormatUserError(err error) string {
	var stepErr *replay.StepError
	var notFound *stream.NotFoundError

	switch {
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, goble.ErrUnsupportedPlatform):
		return "BLE is not supported on this platform"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out: %v", err)
	case errors.As(err, &stepErr):
		return fmt.Sprintf("invalid scenario, event #%d: %v", stepErr.Index+1, stepErr.Err)
	case errors.Is(err, replay.ErrEmptyScenario):
		return "scenario has no events"
	case errors.As(err, &notFound):
		return fmt.Sprintf("%s %s not found on the peripheral", notFound.Resource, notFound.ID)
	case errors.Is(err, os.ErrNotExist):
		return fmt.Sprintf("file not found: %v", err)
	default:
		return err.Error()
	}
}
