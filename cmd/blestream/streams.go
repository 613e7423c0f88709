package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/pkg/stream"
)

// correlate prints every response until the channel is closed and drained.
// Returns nil on a normal close and the context error on cancellation.
func correlate(ctx context.Context, responses *stream.ResponseChannel, printer *eventPrinter) error {
	for {
		r, err := responses.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			printer.ResponsesEnded(err)
			return nil
		}
		printer.Response(r)
	}
}

// awaitResponse prints responses until one of kind arrives and returns it.
// Used while the command drives operations one at a time.
func awaitResponse(ctx context.Context, responses *stream.ResponseChannel, kind stream.ResponseKind, printer *eventPrinter) (stream.Response, error) {
	for {
		r, err := responses.Receive(ctx)
		if err != nil {
			return nil, err
		}
		printer.Response(r)
		if r.Kind() == kind {
			return r, nil
		}
	}
}

// changeSink consumes the changes one observer receives
type changeSink func(stream.CharacteristicChange)

// observe forwards changes from sub to sink until Closed, cancellation of sub, or ctx done
func observe(ctx context.Context, name string, sub *stream.Subscription, sink changeSink, logger *logrus.Logger) {
	defer sub.Cancel()
	for {
		change, err := sub.Receive(ctx)
		if err != nil {
			if !errors.Is(err, stream.ErrSubscriptionDone) {
				logger.WithFields(logrus.Fields{
					"observer": name,
					"error":    err,
				}).Debug("Observer stopped")
			}
			return
		}
		sink(change)
	}
}

// observerName is the printed source of the i-th observer (1-based)
func observerName(i int) string {
	return fmt.Sprintf("observer-%d", i)
}

// logSubscriptionMetrics reports per-observer overflow once streams have ended
func logSubscriptionMetrics(logger *logrus.Logger, name string, sub *stream.Subscription) {
	m := sub.Metrics()
	entry := logger.WithFields(logrus.Fields{
		"observer":  name,
		"delivered": m.Delivered,
		"dropped":   m.Dropped,
		"consumed":  m.Consumed,
	})
	if m.Dropped > 0 {
		entry.Warn("Observer fell behind, oldest changes were dropped")
		return
	}
	entry.Debug("Observer finished")
}
