package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blestream/internal/groutine"
	"github.com/srg/blestream/internal/replay"
	"github.com/srg/blestream/pkg/stream"
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay <scenario.yaml>",
	Short: "Replay a scripted delegate event trace through the streams",
	Long: `Feeds the events of a YAML scenario into a delegate adapter, as if a peripheral
had reported them, and prints both streams:

  [responses]    completions in arrival order, then why the stream ended
  [observer-N]   characteristic changes seen by each of N independent observers

Replay stops when the scenario closes the adapter; otherwise the adapter is closed
after the last event.

Examples:
  # One observer, text output
  blestream replay trace.yaml

  # Three observers, JSON lines
  blestream replay trace.yaml --subscribers 3 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var (
	replaySubscribers int
	replayFormat      string
)

func init() {
	replayCmd.Flags().IntVar(&replaySubscribers, "subscribers", 1, "Number of characteristic change observers")
	replayCmd.Flags().StringVar(&replayFormat, "format", "", "Output format: text or json (default from config)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if replaySubscribers < 1 {
		return fmt.Errorf("--subscribers must be at least 1, got %d", replaySubscribers)
	}
	format, err := outputFormat(replayFormat, cfg)
	if err != nil {
		return err
	}

	sc, err := replay.Load(args[0])
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	printer := newEventPrinter(out, format, isTerminal(out))
	adapter := stream.NewAdapter(cfg.AdapterOptions(logger))

	// Observers attach before the first event so every one of them sees the whole trace
	subs := make([]*stream.Subscription, replaySubscribers)
	for i := range subs {
		subs[i] = adapter.Subscribe()
	}

	group := groutine.NewGroup(ctx, "replay")
	group.Go("correlator", func(ctx context.Context) {
		_ = correlate(ctx, adapter.Responses(), printer)
	})
	for i, sub := range subs {
		name := observerName(i + 1)
		group.Go(name, func(ctx context.Context) {
			observe(ctx, name, sub, func(c stream.CharacteristicChange) {
				printer.Change(name, c)
			}, logger)
		})
	}

	playErr := replay.Play(ctx, sc, adapter, logger)
	if adapter.Close() {
		logger.Debug("Scenario ended without closing the adapter, closed it")
	}
	group.Wait()

	for i, sub := range subs {
		logSubscriptionMetrics(logger, observerName(i+1), sub)
	}
	logReplayStats(logger, sc, adapter)

	if playErr != nil && !errors.Is(playErr, context.Canceled) {
		return fmt.Errorf("replay of %s failed: %w", args[0], playErr)
	}
	return playErr
}

func logReplayStats(logger *logrus.Logger, sc *replay.Scenario, adapter *stream.Adapter) {
	stats := adapter.Stats()
	logger.WithFields(logrus.Fields{
		"scenario":            sc.Name,
		"responses":           stats.Responses,
		"changes":             stats.Changes,
		"discarded":           stats.Discarded,
		"contract_violations": stats.ContractViolations,
	}).Info("Replay finished")

	for _, entry := range adapter.DrainJournal() {
		logger.WithFields(logrus.Fields{
			"kind":    entry.Kind,
			"sink":    entry.Sink,
			"outcome": entry.Outcome,
		}).Debug("Journal")
	}
}
