package led

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/device"
)

// StubLed stands in for ESP-based controllers. It performs no BLE I/O and
// accepts every event.
type StubLed struct {
	addr      device.Address
	connected atomic.Bool
	logger    *logrus.Logger
}

func NewStubLed(addr device.Address, logger *logrus.Logger) *StubLed {
	if logger == nil {
		logger = logrus.New()
	}
	return &StubLed{addr: addr, logger: logger}
}

func (s *StubLed) sealed() {}

func (s *StubLed) Address() device.Address { return s.addr }

func (s *StubLed) Kind() Kind { return KindEsp }

func (s *StubLed) State() device.ConnectionState {
	if s.connected.Load() {
		return device.StateCharacteristicResolved
	}
	return device.StateDisconnected
}

func (s *StubLed) Connect(ctx context.Context) error {
	s.logger.WithField("address", s.addr).Info("Start connect to esp")
	s.connected.Store(true)
	return nil
}

func (s *StubLed) Disconnect(ctx context.Context) error {
	s.connected.Store(false)
	return nil
}

func (s *StubLed) OnEvent(ctx context.Context, ev device.Event) error {
	s.logger.WithFields(logrus.Fields{
		"address": s.addr,
		"event":   ev.String(),
	}).Info("Set led")
	return nil
}
