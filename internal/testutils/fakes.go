package testutils

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/internal/protocol/govee"
)

// RecordingCharacteristic is a device.Characteristic that records every write.
// It also tracks how many writes overlap so tests can assert serialization.
type RecordingCharacteristic struct {
	uuid string

	mu      sync.Mutex
	writes  [][]byte
	failErr error
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func NewRecordingCharacteristic(uuid string) *RecordingCharacteristic {
	return &RecordingCharacteristic{uuid: device.NormalizeUUID(uuid)}
}

func (c *RecordingCharacteristic) UUID() string {
	return c.uuid
}

func (c *RecordingCharacteristic) Write(data []byte) error {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		peak := c.maxInFlight.Load()
		if n <= peak || c.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	c.mu.Lock()
	delay, failErr := c.delay, c.failErr
	c.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failErr != nil {
		return failErr
	}

	c.mu.Lock()
	c.writes = append(c.writes, bytes.Clone(data))
	c.mu.Unlock()
	return nil
}

// FailWrites makes every following write return err; nil restores success
func (c *RecordingCharacteristic) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failErr = err
}

// SetDelay makes every write block for d before completing
func (c *RecordingCharacteristic) SetDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

// Writes returns a copy of the successful writes in order
func (c *RecordingCharacteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	for i, w := range c.writes {
		out[i] = bytes.Clone(w)
	}
	return out
}

// Commands returns the successful writes in order, skipping Govee keep-alive frames
func (c *RecordingCharacteristic) Commands() [][]byte {
	heartbeat := govee.KeepAlive().Bytes()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, 0, len(c.writes))
	for _, w := range c.writes {
		if !bytes.Equal(w, heartbeat) {
			out = append(out, bytes.Clone(w))
		}
	}
	return out
}

func (c *RecordingCharacteristic) WriteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// CountOf returns how many successful writes equal frame
func (c *RecordingCharacteristic) CountOf(frame []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.writes {
		if bytes.Equal(w, frame) {
			n++
		}
	}
	return n
}

// MaxInFlight returns the highest number of concurrent writes observed
func (c *RecordingCharacteristic) MaxInFlight() int {
	return int(c.maxInFlight.Load())
}

// FakeService is a device.Service with a fixed characteristic list
type FakeService struct {
	uuid  string
	chars []device.Characteristic
	err   error
}

func NewFakeService(uuid string, chars ...device.Characteristic) *FakeService {
	return &FakeService{uuid: device.NormalizeUUID(uuid), chars: chars}
}

func (s *FakeService) UUID() string {
	return s.uuid
}

func (s *FakeService) Characteristics() ([]device.Characteristic, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chars, nil
}

// FakeLink is a device.Link whose lifetime is driven by the test
type FakeLink struct {
	addr     device.Address
	services []device.Service

	mu           sync.Mutex
	connected    bool
	closeCount   int
	servicesErr  error
	disconnected chan struct{}
	dropOnce     sync.Once
}

func NewFakeLink(addr device.Address, services ...device.Service) *FakeLink {
	return &FakeLink{
		addr:         addr,
		services:     services,
		connected:    true,
		disconnected: make(chan struct{}),
	}
}

func (l *FakeLink) Address() device.Address {
	return l.addr
}

func (l *FakeLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *FakeLink) Disconnected() <-chan struct{} {
	return l.disconnected
}

func (l *FakeLink) Services() ([]device.Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.servicesErr != nil {
		return nil, l.servicesErr
	}
	return l.services, nil
}

// FailServices makes service discovery return err
func (l *FakeLink) FailServices(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.servicesErr = err
}

func (l *FakeLink) Close() error {
	l.mu.Lock()
	l.closeCount++
	l.mu.Unlock()
	l.Drop()
	return nil
}

// Drop simulates the peripheral going away
func (l *FakeLink) Drop() {
	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()
	l.dropOnce.Do(func() { close(l.disconnected) })
}

// GoSilent marks the link as disconnected without signalling Disconnected,
// like a stack that lost the peer but never reported it.
func (l *FakeLink) GoSilent() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
}

func (l *FakeLink) CloseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeCount
}
