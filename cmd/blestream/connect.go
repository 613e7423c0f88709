package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blestream/internal/groutine"
	"github.com/srg/blestream/pkg/stream"
	"github.com/srg/blestream/pkg/stream/goble"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <device-address>",
	Short: "Watch a live peripheral through the streams",
	Long: `Connects to a peripheral with go-ble, discovers the services of the requested
characteristics, enables notifications and prints both streams until Ctrl+C or
until the peripheral disconnects.

With --raw, notification payloads are written to stdout as raw bytes and the
response stream is not printed.

Examples:
  # Heart rate measurements
  blestream connect AA:BB:CC:DD:EE:FF --notify 180d/2a37

  # Two characteristics, JSON lines
  blestream connect AA:BB:CC:DD:EE:FF --notify 180d/2a37 --notify 180f/2a19 --format json

  # Pipe a serial-style characteristic into another tool
  blestream connect AA:BB:CC:DD:EE:FF --notify 6e400001b5a3f393e0a9e50e24dcca9e/6e400003b5a3f393e0a9e50e24dcca9e --raw | xxd`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var (
	connectTimeout  time.Duration
	connectNotify   []string
	connectIndicate bool
	connectRaw      bool
	connectFormat   string
)

// dialPeripheral opens the client for address; the returned func disconnects it.
// Tests replace it with a mock client.
var dialPeripheral = func(ctx context.Context, address string, timeout time.Duration, logger *logrus.Logger) (goble.GATTClient, func(), error) {
	client, err := goble.Dial(ctx, address, timeout, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.CancelConnection() }, nil
}

func init() {
	connectCmd.Flags().DurationVar(&connectTimeout, "timeout", 0, "Connection timeout (default from config)")
	connectCmd.Flags().StringArrayVar(&connectNotify, "notify", nil, "Characteristic to watch as <service>/<characteristic> (repeatable)")
	connectCmd.Flags().BoolVar(&connectIndicate, "indicate", false, "Request indications instead of notifications")
	connectCmd.Flags().BoolVar(&connectRaw, "raw", false, "Write notification payloads to stdout as raw bytes")
	connectCmd.Flags().StringVar(&connectFormat, "format", "", "Output format: text or json (default from config)")
}

// parseTargets converts --notify values, grouped by service in first-seen order
func parseTargets(values []string) ([]stream.Service, []stream.Characteristic, error) {
	if len(values) == 0 {
		return nil, nil, errors.New("at least one --notify <service>/<characteristic> is required")
	}

	var services []stream.Service
	seenSvc := make(map[stream.Service]bool)
	seenChr := make(map[stream.Characteristic]bool)
	var chars []stream.Characteristic
	for _, v := range values {
		chr, ok := stream.ParseCharacteristic(v)
		if !ok {
			return nil, nil, fmt.Errorf("invalid --notify %q: expected <service>/<characteristic>", v)
		}
		if seenChr[chr] {
			continue
		}
		seenChr[chr] = true
		chars = append(chars, chr)

		svc := stream.Service{UUID: chr.Service}
		if !seenSvc[svc] {
			seenSvc[svc] = true
			services = append(services, svc)
		}
	}
	return services, chars, nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(connectFormat, cfg)
	if err != nil {
		return err
	}
	services, targets, err := parseTargets(connectNotify)
	if err != nil {
		return err
	}
	timeout := connectTimeout
	if timeout <= 0 {
		timeout = cfg.ConnectTimeout
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress *progressPrinter
	if isTerminal(os.Stderr) {
		progress = newProgressPrinter(os.Stderr, "Connecting to "+address, "Connecting", phaseWatching)
		progress.Start()
		defer progress.Stop()
	}
	setPhase := progress.phaseFunc()

	client, disconnect, err := dialPeripheral(ctx, address, timeout, logger)
	if err != nil {
		return err
	}
	defer disconnect()

	adapter := stream.NewAdapter(cfg.AdapterOptions(logger))
	driver := goble.NewDriver(client, adapter, logger)
	defer driver.Close()
	driver.Watch(ctx)

	out := cmd.OutOrStdout()
	printer := newEventPrinter(out, format, !connectRaw && isTerminal(out))
	if connectRaw {
		// Keep stdout for payload bytes only
		printer = newEventPrinter(cmd.ErrOrStderr(), format, false)
	}

	// Subscribe before enabling notifications so the first value is not missed
	sub := adapter.Subscribe()

	if err := setupNotifications(ctx, driver, adapter.Responses(), services, targets, printer, setPhase); err != nil {
		return err
	}
	setPhase(phaseWatching)
	printer.Notice("connect", fmt.Sprintf("watching %d characteristic(s) on %s, press Ctrl+C to stop", len(targets), address))

	group := groutine.NewGroup(ctx, "connect")
	group.Go("correlator", func(ctx context.Context) {
		_ = correlate(ctx, adapter.Responses(), printer)
	})

	var raw *rawSink
	sinkCtx, stopSink := context.WithCancel(context.Background())
	sinkDone := make(chan error, 1)
	if connectRaw {
		raw = newRawSink(out, defaultRawSinkCap, logger)
		groutine.Go(sinkCtx, "connect-raw-sink", func(ctx context.Context) {
			sinkDone <- raw.Run(ctx)
		})
	}

	name := observerName(1)
	group.Go(name, func(ctx context.Context) {
		observe(ctx, name, sub, func(c stream.CharacteristicChange) {
			if data, ok := c.(stream.CharacteristicData); ok && raw != nil {
				raw.Push(data.Value)
				return
			}
			printer.Change(name, c)
		}, logger)
	})

	select {
	case <-ctx.Done():
		logger.Info("Interrupted, closing connection")
	case <-adapter.Done():
		logger.Info("Peripheral adapter closed")
	}
	driver.Close()
	group.Wait()

	stopSink()
	var sinkErr error
	if raw != nil {
		sinkErr = <-sinkDone
		if dropped := raw.Dropped(); dropped > 0 {
			logger.WithField("bytes", dropped).Warn("Raw output could not keep up, payload bytes were dropped")
		}
	}
	logSubscriptionMetrics(logger, name, sub)
	return sinkErr
}

const phaseWatching = "Watching"

// setupStep is one driver operation and the response kind that completes it
type setupStep struct {
	phase string
	kind  stream.ResponseKind
	run   func() error
}

// setupNotifications discovers what targets need and enables notifications,
// one operation at a time, printing every completion on the way.
func setupNotifications(ctx context.Context, driver *goble.Driver, responses *stream.ResponseChannel,
	services []stream.Service, targets []stream.Characteristic, printer *eventPrinter, setPhase phaseFunc) error {

	uuids := make([]stream.UUID, len(services))
	for i, svc := range services {
		uuids[i] = svc.UUID
	}

	steps := []setupStep{
		{"Discovering services", stream.KindServicesDiscovered, func() error { return driver.DiscoverServices(uuids...) }},
	}
	for _, svc := range services {
		steps = append(steps, setupStep{"Discovering characteristics", stream.KindCharacteristicsDiscovered, func() error {
			return driver.DiscoverCharacteristics(svc)
		}})
	}
	for _, chr := range targets {
		steps = append(steps, setupStep{"Enabling notifications", stream.KindNotificationStateChanged, func() error {
			return driver.EnableNotifications(chr, connectIndicate)
		}})
	}

	for _, step := range steps {
		setPhase(step.phase)
		if err := step.run(); err != nil {
			return err
		}
		r, err := awaitResponse(ctx, responses, step.kind, printer)
		if err != nil {
			return err
		}
		if cause := r.Cause(); cause != nil {
			return fmt.Errorf("%s %s failed: %w", r.Kind(), stream.Subject(r), cause)
		}
	}
	return nil
}
