package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	blelib "github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// DefaultMockRSSI is reported by clients built without WithRSSI
const DefaultMockRSSI = -60

// DescriptorConfig represents a GATT descriptor for mocking
type DescriptorConfig struct {
	UUID  string `json:"uuid"`
	Value []byte `json:"value,omitempty"`
}

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID        string             `json:"uuid"`
	Properties  string             `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value       []byte             `json:"value,omitempty"`
	Descriptors []DescriptorConfig `json:"descriptors,omitempty"`
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Address  string          `json:"address"`
	RSSI     int             `json:"rssi,omitempty"`
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds a MockGATTClient serving a fixed GATT profile
//
//	client, profile := testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:FF").
//	    WithService("180d").
//	    WithCharacteristic("2a37", "read,notify", []byte{80}).
//	    WithDescriptor("2902", []byte{0, 0}).
//	    Build()
type PeripheralBuilder struct {
	profile DeviceProfileConfig
}

// NewPeripheralBuilder creates a builder for a peripheral at address
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{
		profile: DeviceProfileConfig{Address: address, RSSI: DefaultMockRSSI},
	}
}

// FromJSON fills the device profile from JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	if config.Address == "" {
		config.Address = b.profile.Address
	}
	if config.RSSI == 0 {
		config.RSSI = DefaultMockRSSI
	}
	b.profile = config
	return b
}

// WithRSSI sets the value ReadRSSI reports
func (b *PeripheralBuilder) WithRSSI(rssi int) *PeripheralBuilder {
	b.profile.RSSI = rssi
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	svc := &b.profile.Services[len(b.profile.Services)-1]
	svc.Characteristics = append(svc.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// WithDescriptor adds a descriptor to the last added characteristic
func (b *PeripheralBuilder) WithDescriptor(uuid string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 || len(b.profile.Services[len(b.profile.Services)-1].Characteristics) == 0 {
		panic("WithDescriptor: no characteristic added yet, call WithCharacteristic first")
	}
	svc := &b.profile.Services[len(b.profile.Services)-1]
	chr := &svc.Characteristics[len(svc.Characteristics)-1]
	chr.Descriptors = append(chr.Descriptors, DescriptorConfig{UUID: uuid, Value: value})
	return b
}

// parseCharacteristicProperties converts a comma-separated property list to ble.Property flags
func parseCharacteristicProperties(props string) blelib.Property {
	if props == "" {
		return blelib.CharRead | blelib.CharWrite | blelib.CharNotify
	}

	var property blelib.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(p) {
		case "read":
			property |= blelib.CharRead
		case "write":
			property |= blelib.CharWrite
		case "write-without-response":
			property |= blelib.CharWriteNR
		case "notify":
			property |= blelib.CharNotify
		case "indicate":
			property |= blelib.CharIndicate
		}
	}
	return property
}

// MockProfile gives tests access to the go-ble objects behind a built mock
type MockProfile struct {
	Services []*blelib.Service
}

// Characteristic finds a characteristic by service and characteristic UUID strings
func (p *MockProfile) Characteristic(svcUUID, chrUUID string) *blelib.Characteristic {
	for _, s := range p.Services {
		if !s.UUID.Equal(blelib.MustParse(svcUUID)) {
			continue
		}
		for _, c := range s.Characteristics {
			if c.UUID.Equal(blelib.MustParse(chrUUID)) {
				return c
			}
		}
	}
	return nil
}

// Build creates a new MockGATTClient serving the configured profile
func (b *PeripheralBuilder) Build() (*MockGATTClient, *MockProfile) {
	client := NewMockGATTClient(b.profile.Address)
	return client, b.BuildOn(client)
}

// BuildOn registers the profile expectations on an existing client. Expectations the
// test registered earlier take precedence, which is how failures are injected.
func (b *PeripheralBuilder) BuildOn(client *MockGATTClient) *MockProfile {
	profile := &MockProfile{}

	for _, svcConfig := range b.profile.Services {
		svc := &blelib.Service{UUID: blelib.MustParse(svcConfig.UUID)}

		for _, charConfig := range svcConfig.Characteristics {
			chr := &blelib.Characteristic{
				UUID:     blelib.MustParse(charConfig.UUID),
				Property: parseCharacteristicProperties(charConfig.Properties),
				Value:    charConfig.Value,
			}
			for _, dscConfig := range charConfig.Descriptors {
				dsc := &blelib.Descriptor{UUID: blelib.MustParse(dscConfig.UUID), Value: dscConfig.Value}
				chr.Descriptors = append(chr.Descriptors, dsc)
				client.On("ReadDescriptor", dsc).Return(dsc.Value, nil).Maybe()
				client.On("WriteDescriptor", dsc, mock.Anything).Return(nil).Maybe()
			}
			svc.Characteristics = append(svc.Characteristics, chr)
			expectCharacteristic(client, chr)
		}

		client.On("DiscoverCharacteristics", mock.Anything, svc).Return(svc.Characteristics, nil).Maybe()
		client.On("DiscoverIncludedServices", mock.Anything, svc).Return([]*blelib.Service(nil), nil).Maybe()
		profile.Services = append(profile.Services, svc)
	}

	client.On("DiscoverServices", mock.Anything).Return(profile.Services, nil).Maybe()
	client.On("ReadRSSI").Return(b.profile.RSSI).Maybe()
	return profile
}

func expectCharacteristic(client *MockGATTClient, chr *blelib.Characteristic) {
	client.On("DiscoverDescriptors", mock.Anything, chr).Return(chr.Descriptors, nil).Maybe()

	if chr.Property&blelib.CharRead != 0 {
		client.On("ReadCharacteristic", chr).Return(chr.Value, nil).Maybe()
	} else {
		client.On("ReadCharacteristic", chr).Return(nil, fmt.Errorf("characteristic does not support read")).Maybe()
	}

	if chr.Property&(blelib.CharWrite|blelib.CharWriteNR) != 0 {
		client.On("WriteCharacteristic", chr, mock.Anything, mock.Anything).Return(nil).Maybe()
	} else {
		client.On("WriteCharacteristic", chr, mock.Anything, mock.Anything).
			Return(fmt.Errorf("characteristic does not support write")).Maybe()
	}

	if chr.Property&(blelib.CharNotify|blelib.CharIndicate) != 0 {
		client.On("Subscribe", chr, mock.Anything, mock.Anything).Return(nil).Maybe()
		client.On("Unsubscribe", chr, mock.Anything).Return(nil).Maybe()
	} else {
		client.On("Subscribe", chr, mock.Anything, mock.Anything).
			Return(fmt.Errorf("characteristic does not support notifications")).Maybe()
	}
}
