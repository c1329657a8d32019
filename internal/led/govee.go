package led

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/connection"
	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/internal/protocol/govee"
)

// GoveeLed is a Govee-style BLE LED controller
type GoveeLed struct {
	manager *connection.Manager
	logger  *logrus.Logger
}

// NewGoveeLed creates a disconnected Govee device. A nil KeepAliveFrame gets the Govee heartbeat.
func NewGoveeLed(opts connection.Options, adapter device.Adapter, discovery *connection.Discovery, logger *logrus.Logger) (*GoveeLed, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.KeepAliveFrame == nil {
		opts.KeepAliveFrame = govee.KeepAlive().Bytes()
	}

	manager, err := connection.NewManager(opts, adapter, discovery, logger)
	if err != nil {
		return nil, err
	}
	return &GoveeLed{manager: manager, logger: logger}, nil
}

func (g *GoveeLed) sealed() {}

func (g *GoveeLed) Address() device.Address {
	return g.manager.Address()
}

func (g *GoveeLed) Kind() Kind {
	return KindGovee
}

func (g *GoveeLed) State() device.ConnectionState {
	return g.manager.State()
}

func (g *GoveeLed) Connect(ctx context.Context) error {
	return g.manager.Connect(ctx)
}

func (g *GoveeLed) Disconnect(ctx context.Context) error {
	return g.manager.Disconnect(ctx)
}

// OnEvent encodes ev and writes it to the control characteristic. Malformed
// input fails before the connection is consulted; Other events are logged and
// dropped. The device is never reconnected implicitly.
func (g *GoveeLed) OnEvent(ctx context.Context, ev device.Event) error {
	log := g.logger.WithFields(logrus.Fields{
		"address": g.Address(),
		"event":   ev.String(),
	})

	frame, ok, err := govee.Encode(ev)
	if err != nil {
		return err
	}
	if !ok {
		log.Info("Ignoring unsupported event")
		return nil
	}

	if err := g.manager.Write(ctx, frame.Bytes()); err != nil {
		return err
	}
	log.WithField("frame", frame.String()).Debug("Event written")
	return nil
}
