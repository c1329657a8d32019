package led

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/device"
)

// UnknownLed accepts every operation for hardware without a supported protocol
type UnknownLed struct {
	addr   device.Address
	logger *logrus.Logger
}

func NewUnknownLed(addr device.Address, logger *logrus.Logger) *UnknownLed {
	if logger == nil {
		logger = logrus.New()
	}
	return &UnknownLed{addr: addr, logger: logger}
}

func (u *UnknownLed) sealed() {}

func (u *UnknownLed) Address() device.Address { return u.addr }

func (u *UnknownLed) Kind() Kind { return KindOther }

func (u *UnknownLed) State() device.ConnectionState { return device.StateDisconnected }

func (u *UnknownLed) Connect(context.Context) error { return nil }

func (u *UnknownLed) Disconnect(context.Context) error { return nil }

func (u *UnknownLed) OnEvent(_ context.Context, ev device.Event) error {
	u.logger.WithFields(logrus.Fields{
		"address": u.addr,
		"event":   ev.String(),
	}).Info("Set led")
	return nil
}
