package goble

import (
	"context"
	"io"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/groutine"
	"github.com/srg/blestream/pkg/stream"
)

var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// GATTClient is the part of ble.Client the driver uses
type GATTClient interface {
	Addr() ble.Addr
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverIncludedServices(filter []ble.UUID, s *ble.Service) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	ReadDescriptor(d *ble.Descriptor) ([]byte, error)
	WriteDescriptor(d *ble.Descriptor, v []byte) error
	ReadRSSI() int
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
}

// disconnectNotifier is implemented by clients that report link loss (darwin)
type disconnectNotifier interface {
	Disconnected() <-chan struct{}
}

// Driver runs GATT operations on a go-ble client and reports each completion to
// an Adapter through its native handler entry points, the same way the
// CoreBluetooth delegate does.
//
// Every operation returns immediately; the go-ble call runs on a named goroutine
// and its outcome arrives on the adapter's response channel or broadcast.
type Driver struct {
	client  GATTClient
	adapter *stream.Adapter
	id      stream.PeripheralID
	logger  *logrus.Logger

	// gattMu serializes requests on the client
	gattMu sync.Mutex

	// lifeMu guards closed against ops.Go racing with Close
	lifeMu sync.RWMutex
	closed bool
	ops    *groutine.Group
	cancel context.CancelFunc

	services    *hashmap.Map[string, *ble.Service]
	chars       *hashmap.Map[string, *ble.Characteristic]
	descriptors *hashmap.Map[string, *ble.Descriptor]
	descValues  *hashmap.Map[string, []byte]
	subscribed  *hashmap.Map[string, bool] // characteristic -> indicate
}

// NewDriver binds client to adapter. A nil logger disables logging.
func NewDriver(client GATTClient, adapter *stream.Adapter, logger *logrus.Logger) *Driver {
	if logger == nil {
		logger = noopLogger
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := stream.PeripheralID(client.Addr().String())
	return &Driver{
		client:      client,
		adapter:     adapter,
		id:          id,
		logger:      logger,
		ops:         groutine.NewGroup(ctx, "goble-"+string(id)),
		cancel:      cancel,
		services:    hashmap.New[string, *ble.Service](),
		chars:       hashmap.New[string, *ble.Characteristic](),
		descriptors: hashmap.New[string, *ble.Descriptor](),
		descValues:  hashmap.New[string, []byte](),
		subscribed:  hashmap.New[string, bool](),
	}
}

// Peripheral returns the identity used in every event this driver reports
func (d *Driver) Peripheral() stream.PeripheralID {
	return d.id
}

// run starts op on the driver's goroutine group, or returns ErrDriverClosed
func (d *Driver) run(name string, op func()) error {
	d.lifeMu.RLock()
	defer d.lifeMu.RUnlock()

	if d.closed {
		return ErrDriverClosed
	}
	d.ops.Go(name, func(context.Context) {
		d.gattMu.Lock()
		defer d.gattMu.Unlock()
		op()
	})
	return nil
}

// ----------------------------
// Discovery
// ----------------------------

// DiscoverServices discovers primary services, limited to filter when given.
// Completes with ServicesDiscovered.
func (d *Driver) DiscoverServices(filter ...stream.UUID) error {
	return d.run("discover-services", func() {
		svcs, err := d.client.DiscoverServices(toBLE(filter))
		for _, s := range svcs {
			d.services.Set(serviceOf(s).String(), s)
		}
		d.logger.WithFields(logrus.Fields{
			"peripheral": d.id,
			"services":   len(svcs),
			"error":      err,
		}).Debug("Services discovered")
		d.adapter.DidDiscoverServices(d.id, NormalizeError(err))
	})
}

// DiscoverIncludedServices completes with IncludedServicesDiscovered
func (d *Driver) DiscoverIncludedServices(svc stream.Service, filter ...stream.UUID) error {
	return d.run("discover-included-"+svc.String(), func() {
		s, ok := d.services.Get(svc.String())
		if !ok {
			d.adapter.DidDiscoverIncludedServices(d.id, svc, notFound("service", svc.String()))
			return
		}
		included, err := d.client.DiscoverIncludedServices(toBLE(filter), s)
		for _, inc := range included {
			d.services.Set(serviceOf(inc).String(), inc)
		}
		d.adapter.DidDiscoverIncludedServices(d.id, svc, NormalizeError(err))
	})
}

// DiscoverCharacteristics completes with CharacteristicsDiscovered
func (d *Driver) DiscoverCharacteristics(svc stream.Service, filter ...stream.UUID) error {
	return d.run("discover-characteristics-"+svc.String(), func() {
		s, ok := d.services.Get(svc.String())
		if !ok {
			d.adapter.DidDiscoverCharacteristics(d.id, svc, notFound("service", svc.String()))
			return
		}
		chars, err := d.client.DiscoverCharacteristics(toBLE(filter), s)
		for _, c := range chars {
			d.chars.Set(characteristicOf(svc, c).String(), c)
		}
		d.logger.WithFields(logrus.Fields{
			"service":         svc,
			"characteristics": len(chars),
			"error":           err,
		}).Debug("Characteristics discovered")
		d.adapter.DidDiscoverCharacteristics(d.id, svc, NormalizeError(err))
	})
}

// DiscoverDescriptors completes with DescriptorsDiscovered
func (d *Driver) DiscoverDescriptors(chr stream.Characteristic) error {
	return d.run("discover-descriptors-"+chr.String(), func() {
		c, ok := d.chars.Get(chr.String())
		if !ok {
			d.adapter.DidDiscoverDescriptors(d.id, chr, notFound("characteristic", chr.String()))
			return
		}
		descs, err := d.client.DiscoverDescriptors(nil, c)
		for _, dsc := range descs {
			d.descriptors.Set(descriptorOf(chr, dsc).String(), dsc)
		}
		d.adapter.DidDiscoverDescriptors(d.id, chr, NormalizeError(err))
	})
}

// Services lists the services discovered so far
func (d *Driver) Services() []stream.Service {
	out := make([]stream.Service, 0, d.services.Len())
	d.services.Range(func(_ string, s *ble.Service) bool {
		out = append(out, serviceOf(s))
		return true
	})
	return out
}

// Characteristics lists the characteristics discovered so far
func (d *Driver) Characteristics() []stream.Characteristic {
	out := make([]stream.Characteristic, 0, d.chars.Len())
	d.chars.Range(func(key string, _ *ble.Characteristic) bool {
		if chr, ok := stream.ParseCharacteristic(key); ok {
			out = append(out, chr)
		}
		return true
	})
	return out
}

// ----------------------------
// Characteristic I/O
// ----------------------------

// ReadCharacteristic reads the value. The completion is a characteristic change on
// the broadcast, like a notification.
func (d *Driver) ReadCharacteristic(chr stream.Characteristic) error {
	return d.run("read-"+chr.String(), func() {
		c, ok := d.chars.Get(chr.String())
		if !ok {
			d.adapter.DidUpdateValueForCharacteristic(d.id, chr, nil, notFound("characteristic", chr.String()))
			return
		}
		data, err := d.client.ReadCharacteristic(c)
		if err == nil && data == nil {
			// go-ble reports an empty attribute as nil
			data = []byte{}
		}
		d.adapter.DidUpdateValueForCharacteristic(d.id, chr, data, NormalizeError(err))
	})
}

// WriteCharacteristic writes data. With noRsp a successful write completes with
// ReadyToSendWithoutResponse; a failed one, and every write with response, completes
// with CharacteristicWritten.
func (d *Driver) WriteCharacteristic(chr stream.Characteristic, data []byte, noRsp bool) error {
	value := append([]byte(nil), data...)
	return d.run("write-"+chr.String(), func() {
		c, ok := d.chars.Get(chr.String())
		if !ok {
			d.adapter.DidWriteValueForCharacteristic(d.id, chr, notFound("characteristic", chr.String()))
			return
		}
		err := NormalizeError(d.client.WriteCharacteristic(c, value, noRsp))
		if noRsp && err == nil {
			d.adapter.IsReadyToSendWriteWithoutResponse(d.id)
			return
		}
		d.adapter.DidWriteValueForCharacteristic(d.id, chr, err)
	})
}

// EnableNotifications subscribes to notifications (or indications). Completes with
// NotificationStateChanged; each pushed value is broadcast as a characteristic change.
func (d *Driver) EnableNotifications(chr stream.Characteristic, indicate bool) error {
	return d.run("subscribe-"+chr.String(), func() {
		c, ok := d.chars.Get(chr.String())
		if !ok {
			d.adapter.DidUpdateNotificationState(d.id, chr, notFound("characteristic", chr.String()))
			return
		}
		err := d.client.Subscribe(c, indicate, func(data []byte) {
			if data == nil {
				data = []byte{}
			}
			d.adapter.DidUpdateValueForCharacteristic(d.id, chr, data, nil)
		})
		if err == nil {
			d.subscribed.Set(chr.String(), indicate)
		}
		d.logger.WithFields(logrus.Fields{
			"characteristic": chr,
			"indicate":       indicate,
			"error":          err,
		}).Debug("Notification state change requested")
		d.adapter.DidUpdateNotificationState(d.id, chr, NormalizeError(err))
	})
}

// DisableNotifications completes with NotificationStateChanged
func (d *Driver) DisableNotifications(chr stream.Characteristic) error {
	return d.run("unsubscribe-"+chr.String(), func() {
		c, ok := d.chars.Get(chr.String())
		if !ok {
			d.adapter.DidUpdateNotificationState(d.id, chr, notFound("characteristic", chr.String()))
			return
		}
		indicate, _ := d.subscribed.Get(chr.String())
		err := d.client.Unsubscribe(c, indicate)
		if err == nil {
			d.subscribed.Del(chr.String())
		}
		d.adapter.DidUpdateNotificationState(d.id, chr, NormalizeError(err))
	})
}

// ----------------------------
// Descriptor I/O
// ----------------------------

// ReadDescriptor completes with DescriptorUpdated; the value is then available from DescriptorValue
func (d *Driver) ReadDescriptor(dsc stream.Descriptor) error {
	return d.run("read-descriptor-"+dsc.String(), func() {
		desc, ok := d.descriptors.Get(dsc.String())
		if !ok {
			d.adapter.DidUpdateValueForDescriptor(d.id, dsc, notFound("descriptor", dsc.String()))
			return
		}
		data, err := d.client.ReadDescriptor(desc)
		if err == nil {
			d.descValues.Set(dsc.String(), append([]byte{}, data...))
		}
		d.adapter.DidUpdateValueForDescriptor(d.id, dsc, NormalizeError(err))
	})
}

// DescriptorValue returns the last value read by ReadDescriptor
func (d *Driver) DescriptorValue(dsc stream.Descriptor) ([]byte, bool) {
	return d.descValues.Get(dsc.String())
}

// WriteDescriptor completes with DescriptorWritten
func (d *Driver) WriteDescriptor(dsc stream.Descriptor, data []byte) error {
	value := append([]byte(nil), data...)
	return d.run("write-descriptor-"+dsc.String(), func() {
		desc, ok := d.descriptors.Get(dsc.String())
		if !ok {
			d.adapter.DidWriteValueForDescriptor(d.id, dsc, notFound("descriptor", dsc.String()))
			return
		}
		err := d.client.WriteDescriptor(desc, value)
		d.adapter.DidWriteValueForDescriptor(d.id, dsc, NormalizeError(err))
	})
}

// ReadRSSI completes with RssiRead
func (d *Driver) ReadRSSI() error {
	return d.run("read-rssi", func() {
		d.adapter.DidReadRSSI(d.id, d.client.ReadRSSI(), nil)
	})
}

// ----------------------------
// Lifecycle
// ----------------------------

// Watch closes the adapter with ErrDisconnected once the client reports link loss.
// It returns at once for clients that cannot report it.
func (d *Driver) Watch(ctx context.Context) {
	notifier, ok := d.client.(disconnectNotifier)
	if !ok {
		d.logger.Debug("Client does not support Disconnected() channel (non-Darwin platform?)")
		return
	}

	groutine.Go(ctx, "goble-disconnect-monitor", func(ctx context.Context) {
		select {
		case <-notifier.Disconnected():
			d.logger.WithField("peripheral", d.id).Warn("Peripheral reported disconnection, closing adapter")
			d.adapter.CloseWithCause(ErrDisconnected)
		case <-d.adapter.Done():
		case <-ctx.Done():
		}
	})
}

// Close rejects new operations, waits for in-flight ones and closes the adapter.
// Safe to call more than once.
func (d *Driver) Close() {
	d.lifeMu.Lock()
	if d.closed {
		d.lifeMu.Unlock()
		return
	}
	d.closed = true
	d.lifeMu.Unlock()

	d.ops.Wait()
	d.cancel()
	d.adapter.Close()
}

// ----------------------------
// Identity conversion
// ----------------------------

func notFound(resource, id string) error {
	return &stream.NotFoundError{Resource: resource, ID: id}
}

func toBLE(uuids []stream.UUID) []ble.UUID {
	if len(uuids) == 0 {
		return nil
	}
	out := make([]ble.UUID, 0, len(uuids))
	for _, u := range uuids {
		if parsed, err := ble.Parse(string(u)); err == nil {
			out = append(out, parsed)
		}
	}
	return out
}

func serviceOf(s *ble.Service) stream.Service {
	return stream.Service{UUID: stream.NormalizeUUID(s.UUID.String())}
}

func characteristicOf(svc stream.Service, c *ble.Characteristic) stream.Characteristic {
	return stream.Characteristic{Service: svc.UUID, UUID: stream.NormalizeUUID(c.UUID.String())}
}

func descriptorOf(chr stream.Characteristic, dsc *ble.Descriptor) stream.Descriptor {
	return stream.Descriptor{Characteristic: chr, UUID: stream.NormalizeUUID(dsc.UUID.String())}
}
