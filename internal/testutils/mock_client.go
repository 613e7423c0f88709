package testutils

import (
	"sync"

	blelib "github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockGATTClient is a testify mock of the go-ble client calls used by the goble driver.
// Subscribe records the notification handler so tests can push values with Notify.
type MockGATTClient struct {
	mock.Mock

	addr         blelib.Addr
	mu           sync.Mutex
	handlers     map[*blelib.Characteristic]blelib.NotificationHandler
	disconnected chan struct{}
	once         sync.Once
}

// NewMockGATTClient creates a mock client with no expectations
func NewMockGATTClient(address string) *MockGATTClient {
	return &MockGATTClient{
		addr:         blelib.NewAddr(address),
		handlers:     make(map[*blelib.Characteristic]blelib.NotificationHandler),
		disconnected: make(chan struct{}),
	}
}

func (m *MockGATTClient) Addr() blelib.Addr {
	return m.addr
}

func (m *MockGATTClient) DiscoverServices(filter []blelib.UUID) ([]*blelib.Service, error) {
	args := m.Called(filter)
	svcs, _ := args.Get(0).([]*blelib.Service)
	return svcs, args.Error(1)
}

func (m *MockGATTClient) DiscoverIncludedServices(filter []blelib.UUID, s *blelib.Service) ([]*blelib.Service, error) {
	args := m.Called(filter, s)
	svcs, _ := args.Get(0).([]*blelib.Service)
	return svcs, args.Error(1)
}

func (m *MockGATTClient) DiscoverCharacteristics(filter []blelib.UUID, s *blelib.Service) ([]*blelib.Characteristic, error) {
	args := m.Called(filter, s)
	chars, _ := args.Get(0).([]*blelib.Characteristic)
	return chars, args.Error(1)
}

func (m *MockGATTClient) DiscoverDescriptors(filter []blelib.UUID, c *blelib.Characteristic) ([]*blelib.Descriptor, error) {
	args := m.Called(filter, c)
	descs, _ := args.Get(0).([]*blelib.Descriptor)
	return descs, args.Error(1)
}

func (m *MockGATTClient) ReadCharacteristic(c *blelib.Characteristic) ([]byte, error) {
	args := m.Called(c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockGATTClient) WriteCharacteristic(c *blelib.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *MockGATTClient) ReadDescriptor(d *blelib.Descriptor) ([]byte, error) {
	args := m.Called(d)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockGATTClient) WriteDescriptor(d *blelib.Descriptor, v []byte) error {
	return m.Called(d, v).Error(0)
}

func (m *MockGATTClient) ReadRSSI() int {
	return m.Called().Int(0)
}

func (m *MockGATTClient) Subscribe(c *blelib.Characteristic, ind bool, h blelib.NotificationHandler) error {
	err := m.Called(c, ind, h).Error(0)
	if err == nil {
		m.mu.Lock()
		m.handlers[c] = h
		m.mu.Unlock()
	}
	return err
}

func (m *MockGATTClient) Unsubscribe(c *blelib.Characteristic, ind bool) error {
	err := m.Called(c, ind).Error(0)
	if err == nil {
		m.mu.Lock()
		delete(m.handlers, c)
		m.mu.Unlock()
	}
	return err
}

func (m *MockGATTClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// Notify invokes the handler registered for c, as the peripheral pushing a value.
// Returns false if c has no active subscription.
func (m *MockGATTClient) Notify(c *blelib.Characteristic, data []byte) bool {
	m.mu.Lock()
	h, ok := m.handlers[c]
	m.mu.Unlock()
	if ok {
		h(data)
	}
	return ok
}

// Disconnect simulates link loss
func (m *MockGATTClient) Disconnect() {
	m.once.Do(func() { close(m.disconnected) })
}
