// Package goble binds the device abstractions to github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"strings"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Advertisement is the subset of an advertising packet the CLI reports
type Advertisement struct {
	Address     device.Address
	Name        string
	RSSI        int
	Connectable bool
	Services    []string
}

// Adapter implements device.Adapter on top of a go-ble host device
type Adapter struct {
	dev    ble.Device
	logger *logrus.Logger
}

// NewAdapter opens the platform BLE device through DeviceFactory
func NewAdapter(logger *logrus.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	dev, err := DeviceFactory()
	if err != nil {
		logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, NormalizeError(err)
	}
	return &Adapter{dev: dev, logger: logger}, nil
}

// Scan reports every advertising peripheral with a hardware address. Platforms
// that only expose opaque identifiers yield nothing.
func (a *Adapter) Scan(ctx context.Context, handler func(device.Address)) error {
	return a.ScanAdvertisements(ctx, func(adv Advertisement) {
		handler(adv.Address)
	})
}

// ScanAdvertisements is Scan with the advertised name, RSSI and services
func (a *Adapter) ScanAdvertisements(ctx context.Context, handler func(Advertisement)) error {
	err := a.dev.Scan(ctx, true, func(adv ble.Advertisement) {
		addr, err := device.ParseAddress(adv.Addr().String())
		if err != nil {
			a.logger.WithField("addr", adv.Addr().String()).Trace("Skipping advertisement without hardware address")
			return
		}

		services := make([]string, 0, len(adv.Services()))
		for _, svc := range adv.Services() {
			services = append(services, device.NormalizeUUID(svc.String()))
		}

		handler(Advertisement{
			Address:     addr,
			Name:        adv.LocalName(),
			RSSI:        adv.RSSI(),
			Connectable: adv.Connectable(),
			Services:    services,
		})
	})
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return NormalizeError(err)
}

// Dial opens a GATT client connection to addr
func (a *Adapter) Dial(ctx context.Context, addr device.Address) (device.Link, error) {
	a.logger.WithField("address", addr).Debug("Dialing BLE device...")

	client, err := a.dev.Dial(ctx, ble.NewAddr(strings.ToLower(addr.String())))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return newLink(addr, client, a.logger), nil
}

// Close releases the host device
func (a *Adapter) Close() error {
	return NormalizeError(a.dev.Stop())
}
