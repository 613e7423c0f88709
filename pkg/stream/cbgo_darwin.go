//go:build darwin

package stream

import (
	"github.com/JuulLabs-OSS/cbgo"
)

// CBDelegate implements cbgo.PeripheralDelegate by forwarding every CoreBluetooth
// peripheral callback to an Adapter. Register it with Peripheral.SetDelegate.
//
// CoreBluetooth invokes the delegate on its own dispatch queue; the Adapter
// never blocks that queue.
type CBDelegate struct {
	cbgo.PeripheralDelegateBase

	adapter *Adapter
}

// NewCBDelegate binds a CoreBluetooth peripheral delegate to adapter
func NewCBDelegate(adapter *Adapter) *CBDelegate {
	return &CBDelegate{adapter: adapter}
}

func cbPeripheralID(prph cbgo.Peripheral) PeripheralID {
	return PeripheralID(prph.Identifier().String())
}

func cbService(svc cbgo.Service) Service {
	return Service{UUID: NormalizeUUID(svc.UUID().String())}
}

func cbCharacteristic(chr cbgo.Characteristic) Characteristic {
	return Characteristic{
		Service: NormalizeUUID(chr.Service().UUID().String()),
		UUID:    NormalizeUUID(chr.UUID().String()),
	}
}

func cbDescriptor(dsc cbgo.Descriptor) Descriptor {
	return Descriptor{
		Characteristic: cbCharacteristic(dsc.Characteristic()),
		UUID:           NormalizeUUID(dsc.UUID().String()),
	}
}

func (d *CBDelegate) DidDiscoverServices(prph cbgo.Peripheral, err error) {
	d.adapter.DidDiscoverServices(cbPeripheralID(prph), err)
}

func (d *CBDelegate) DidDiscoverIncludedServices(prph cbgo.Peripheral, svc cbgo.Service, err error) {
	d.adapter.DidDiscoverIncludedServices(cbPeripheralID(prph), cbService(svc), err)
}

func (d *CBDelegate) DidDiscoverCharacteristics(prph cbgo.Peripheral, svc cbgo.Service, err error) {
	d.adapter.DidDiscoverCharacteristics(cbPeripheralID(prph), cbService(svc), err)
}

func (d *CBDelegate) DidDiscoverDescriptors(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	d.adapter.DidDiscoverDescriptors(cbPeripheralID(prph), cbCharacteristic(chr), err)
}

// DidUpdateValueForCharacteristic reads the value on the CoreBluetooth queue; the
// adapter copies it before handing it to subscribers.
func (d *CBDelegate) DidUpdateValueForCharacteristic(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	var value []byte
	if err == nil {
		value = chr.Value()
	}
	d.adapter.DidUpdateValueForCharacteristic(cbPeripheralID(prph), cbCharacteristic(chr), value, err)
}

func (d *CBDelegate) DidUpdateValueForDescriptor(prph cbgo.Peripheral, dsc cbgo.Descriptor, err error) {
	d.adapter.DidUpdateValueForDescriptor(cbPeripheralID(prph), cbDescriptor(dsc), err)
}

func (d *CBDelegate) DidWriteValueForCharacteristic(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	d.adapter.DidWriteValueForCharacteristic(cbPeripheralID(prph), cbCharacteristic(chr), err)
}

func (d *CBDelegate) DidWriteValueForDescriptor(prph cbgo.Peripheral, dsc cbgo.Descriptor, err error) {
	d.adapter.DidWriteValueForDescriptor(cbPeripheralID(prph), cbDescriptor(dsc), err)
}

func (d *CBDelegate) IsReadyToSendWriteWithoutResponse(prph cbgo.Peripheral) {
	d.adapter.IsReadyToSendWriteWithoutResponse(cbPeripheralID(prph))
}

func (d *CBDelegate) DidUpdateNotificationState(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	d.adapter.DidUpdateNotificationState(cbPeripheralID(prph), cbCharacteristic(chr), err)
}

func (d *CBDelegate) DidReadRSSI(prph cbgo.Peripheral, rssi int, err error) {
	d.adapter.DidReadRSSI(cbPeripheralID(prph), rssi, err)
}

var _ cbgo.PeripheralDelegate = (*CBDelegate)(nil)
