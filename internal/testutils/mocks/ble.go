// Package mocks holds testify mocks of the go-ble interfaces. Each mock embeds
// the interface it doubles, so calling a method that is not mocked panics.
package mocks

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockDevice mocks ble.Device
type MockDevice struct {
	ble.Device
	mock.Mock
}

func (m *MockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

func (m *MockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a)
	var client ble.Client
	if c := args.Get(0); c != nil {
		client = c.(ble.Client)
	}
	return client, args.Error(1)
}

func (m *MockDevice) Stop() error {
	args := m.Called()
	return args.Error(0)
}

// MockClient mocks ble.Client
type MockClient struct {
	ble.Client
	mock.Mock
}

func (m *MockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	var profile *ble.Profile
	if p := args.Get(0); p != nil {
		profile = p.(*ble.Profile)
	}
	return profile, args.Error(1)
}

func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(c, value, noRsp)
	return args.Error(0)
}

func (m *MockClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(chan struct{})
}

// MockAdvertisement mocks ble.Advertisement
type MockAdvertisement struct {
	ble.Advertisement
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string {
	return m.Called().String(0)
}

func (m *MockAdvertisement) Addr() ble.Addr {
	return m.Called().Get(0).(ble.Addr)
}

func (m *MockAdvertisement) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Connectable() bool {
	return m.Called().Bool(0)
}

func (m *MockAdvertisement) Services() []ble.UUID {
	args := m.Called()
	if s := args.Get(0); s != nil {
		return s.([]ble.UUID)
	}
	return nil
}

// NewAdvertisement builds a MockAdvertisement with every accessor stubbed
func NewAdvertisement(addr, name string, rssi int, services ...ble.UUID) *MockAdvertisement {
	adv := &MockAdvertisement{}
	adv.On("Addr").Return(ble.NewAddr(addr)).Maybe()
	adv.On("LocalName").Return(name).Maybe()
	adv.On("RSSI").Return(rssi).Maybe()
	adv.On("Connectable").Return(true).Maybe()
	adv.On("Services").Return(services).Maybe()
	return adv
}
