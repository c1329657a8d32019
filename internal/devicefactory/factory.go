// Package devicefactory turns the configured device list into a led.Registry.
package devicefactory

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/connection"
	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/internal/device/go-ble"
	"github.com/srg/ledctl/internal/led"
	"github.com/srg/ledctl/pkg/config"
)

// AdapterFactory opens the host BLE adapter.
// This is a variable so that it can be overridden in tests.
var AdapterFactory = func(logger *logrus.Logger) (device.Adapter, error) {
	return goble.NewAdapter(logger)
}

// Fleet is the set of configured devices plus the adapter they share
type Fleet struct {
	Registry *led.Registry

	adapter   device.Adapter
	discovery *connection.Discovery // nil when no BLE device is configured
}

// Close disconnects every device, then releases the adapter
func (f *Fleet) Close(ctx context.Context) error {
	err := f.Registry.Close(ctx)
	if closer, ok := f.adapter.(io.Closer); ok {
		err = errors.Join(err, closer.Close())
	}
	return err
}

// Options maps the global connection settings onto one configured device
func Options(cfg *config.Config, d config.DeviceConfig) (connection.Options, error) {
	addr, err := device.ParseAddress(d.Address)
	if err != nil {
		return connection.Options{}, err
	}
	opts := connection.DefaultOptions(addr, d.Service, d.Characteristic)
	opts.MaxConnectRetries = cfg.ConnectRetries
	opts.ConnectTimeout = cfg.ConnectTimeout
	opts.KeepAliveInterval = cfg.KeepAliveInterval
	opts.CommandRate = cfg.CommandRate
	return opts, nil
}

// Build creates a Fleet from cfg. The BLE adapter is opened only when at least
// one Govee device is configured; all of them share one discovery session.
func Build(cfg *config.Config, logger *logrus.Logger) (*Fleet, error) {
	if logger == nil {
		logger = logrus.New()
	}

	fleet := &Fleet{Registry: led.NewRegistry(logger)}

	for i, d := range cfg.Devices {
		kind, err := led.ParseKind(d.Vendor)
		if err != nil {
			return nil, fleet.abort(fmt.Errorf("devices[%d]: %w", i, err))
		}
		addr, err := device.ParseAddress(d.Address)
		if err != nil {
			return nil, fleet.abort(fmt.Errorf("devices[%d]: %w", i, err))
		}

		var dev led.Device
		switch kind {
		case led.KindGovee:
			if fleet.adapter == nil {
				adapter, err := AdapterFactory(logger)
				if err != nil {
					return nil, fleet.abort(fmt.Errorf("failed to open BLE adapter: %w", err))
				}
				fleet.adapter = adapter
				fleet.discovery = connection.NewDiscovery(adapter, cfg.ScanTimeout, logger)
			}

			opts, err := Options(cfg, d)
			if err != nil {
				return nil, fleet.abort(fmt.Errorf("devices[%d]: %w", i, err))
			}
			g, err := led.NewGoveeLed(opts, fleet.adapter, fleet.discovery, logger)
			if err != nil {
				return nil, fleet.abort(fmt.Errorf("devices[%d]: %w", i, err))
			}
			dev = g
		case led.KindEsp:
			dev = led.NewStubLed(addr, logger)
		default:
			dev = led.NewUnknownLed(addr, logger)
		}

		if err := fleet.Registry.Add(dev); err != nil {
			return nil, fleet.abort(err)
		}
	}

	logger.WithField("devices", fleet.Registry.Len()).Info("Device registry ready")
	return fleet, nil
}

// abort releases a partially opened adapter and returns err
func (f *Fleet) abort(err error) error {
	if closer, ok := f.adapter.(io.Closer); ok {
		_ = closer.Close()
	}
	return err
}
