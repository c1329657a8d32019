package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/srg/ledctl/internal/device"
	"github.com/stretchr/testify/mock"
)

const (
	GoveeServiceUUID        = "00010203-0405-0607-0809-0a0b0c0d1910"
	GoveeCharacteristicUUID = "00010203-0405-0607-0809-0a0b0c0d2b11"

	DefaultPeripheralAddress = "A4:C1:38:00:11:22"
)

// CharacteristicConfig represents a characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID string `json:"uuid"`
}

// ServiceConfig represents a service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete GATT profile for mocking
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder scripts a mocked LED peripheral: whether it advertises,
// how many dial attempts fail, and which services it exposes. Every successful
// dial returns a fresh FakeLink sharing the same recording characteristics.
type PeripheralDeviceBuilder struct {
	address   device.Address
	profile   DeviceProfileConfig
	advertise bool

	mu           sync.Mutex
	dialFailures int
	dialErr      error
	servicesErr  error
	dials        int
	links        []*FakeLink
	chars        map[string]*RecordingCharacteristic
}

// NewPeripheralDeviceBuilder creates a builder for the peripheral at addr
func NewPeripheralDeviceBuilder(addr string) *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		address:   device.MustParseAddress(addr),
		advertise: true,
		chars:     make(map[string]*RecordingCharacteristic),
	}
}

// Address returns the canonical peripheral address
func (b *PeripheralDeviceBuilder) Address() device.Address {
	return b.address
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid string) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{UUID: uuid})
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.profile = config
	return b
}

// WithoutAdvertisement keeps the peripheral silent during scans
func (b *PeripheralDeviceBuilder) WithoutAdvertisement() *PeripheralDeviceBuilder {
	b.advertise = false
	return b
}

// WithDialFailures makes the first n dial attempts fail with err
func (b *PeripheralDeviceBuilder) WithDialFailures(n int, err error) *PeripheralDeviceBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialFailures = n
	b.dialErr = err
	return b
}

// WithServicesError makes service discovery fail with err on every link
func (b *PeripheralDeviceBuilder) WithServicesError(err error) *PeripheralDeviceBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.servicesErr = err
	return b
}

// Characteristic returns the recording characteristic for svc/char, creating it on first use
func (b *PeripheralDeviceBuilder) Characteristic(svc, char string) *RecordingCharacteristic {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.charLocked(svc, char)
}

// ControlCharacteristic returns the Govee control characteristic
func (b *PeripheralDeviceBuilder) ControlCharacteristic() *RecordingCharacteristic {
	return b.Characteristic(GoveeServiceUUID, GoveeCharacteristicUUID)
}

// Links returns every link handed out so far
func (b *PeripheralDeviceBuilder) Links() []*FakeLink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*FakeLink(nil), b.links...)
}

// LastLink returns the most recently dialed link, or nil
func (b *PeripheralDeviceBuilder) LastLink() *FakeLink {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.links) == 0 {
		return nil
	}
	return b.links[len(b.links)-1]
}

// Dials returns the number of dial attempts, failed ones included
func (b *PeripheralDeviceBuilder) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *PeripheralDeviceBuilder) charLocked(svc, char string) *RecordingCharacteristic {
	key := device.NormalizeUUID(svc) + "/" + device.NormalizeUUID(char)
	c, ok := b.chars[key]
	if !ok {
		c = NewRecordingCharacteristic(char)
		b.chars[key] = c
	}
	return c
}

func (b *PeripheralDeviceBuilder) dial() (device.Link, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	if b.dialFailures > 0 {
		b.dialFailures--
		return nil, b.dialErr
	}

	services := make([]device.Service, 0, len(b.profile.Services))
	for _, svc := range b.profile.Services {
		chars := make([]device.Characteristic, 0, len(svc.Characteristics))
		for _, c := range svc.Characteristics {
			chars = append(chars, b.charLocked(svc.UUID, c.UUID))
		}
		services = append(services, NewFakeService(svc.UUID, chars...))
	}

	link := NewFakeLink(b.address, services...)
	if b.servicesErr != nil {
		link.FailServices(b.servicesErr)
	}
	b.links = append(b.links, link)
	return link, nil
}

// Build creates a MockAdapter serving this peripheral
func (b *PeripheralDeviceBuilder) Build() *MockAdapter {
	return BuildAdapter(b)
}

// AdvertisingInterval is how often mocked peripherals re-advertise during a scan
var AdvertisingInterval = 5 * time.Millisecond

// BuildAdapter creates a MockAdapter serving every given peripheral. Scan keeps
// reporting the advertising peripherals until its context ends, like a real
// scan. Dial of an unknown address fails.
func BuildAdapter(peripherals ...*PeripheralDeviceBuilder) *MockAdapter {
	byAddr := make(map[device.Address]*PeripheralDeviceBuilder, len(peripherals))
	for _, p := range peripherals {
		byAddr[p.address] = p
	}

	adapter := &MockAdapter{}
	adapter.On("Scan", mock.Anything, mock.Anything).Return(ScanFunc(func(ctx context.Context, handler func(device.Address)) error {
		for {
			for _, p := range peripherals {
				if p.advertise {
					handler(p.address)
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(AdvertisingInterval):
			}
		}
	}))
	adapter.On("Dial", mock.Anything, mock.Anything).Return(DialFunc(func(ctx context.Context, addr device.Address) (device.Link, error) {
		p, ok := byAddr[addr]
		if !ok {
			return nil, fmt.Errorf("peripheral %s is unreachable", addr)
		}
		return p.dial()
	}))
	return adapter
}
