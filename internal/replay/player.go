package replay

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/pkg/stream"
)

// noopLogger is a shared logger instance that discards all output.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Play feeds the scenario into adapter in script order, honouring step delays.
// It stops early when ctx is cancelled. Play does not close the adapter unless the
// script has a close step.
func Play(ctx context.Context, sc *Scenario, adapter *stream.Adapter, logger *logrus.Logger) error {
	if logger == nil {
		logger = noopLogger
	}

	for i, action := range sc.Actions() {
		if action.Delay > 0 {
			timer := time.NewTimer(action.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if action.Close {
			logger.WithFields(logrus.Fields{
				"step":  i + 1,
				"cause": action.Cause,
			}).Debug("Replaying close")
			adapter.CloseWithCause(action.Cause)
			continue
		}

		logger.WithFields(logrus.Fields{
			"step":       i + 1,
			"kind":       action.Event.Kind,
			"peripheral": action.Event.Peripheral,
		}).Debug("Replaying native event")
		adapter.Deliver(action.Event)
	}

	logger.WithFields(logrus.Fields{
		"scenario": sc.Name,
		"events":   len(sc.Actions()),
	}).Info("Scenario replayed")
	return nil
}
