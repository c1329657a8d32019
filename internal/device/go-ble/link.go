package goble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/internal/groutine"
)

// link is a device.Link backed by a go-ble client
type link struct {
	addr   device.Address
	client ble.Client
	logger *logrus.Logger

	connected    atomic.Bool
	disconnected chan struct{}
	closeOnce    sync.Once
	markOnce     sync.Once
}

func newLink(addr device.Address, client ble.Client, logger *logrus.Logger) *link {
	if logger == nil {
		logger = logrus.New()
	}
	l := &link{
		addr:         addr,
		client:       client,
		logger:       logger,
		disconnected: make(chan struct{}),
	}
	l.connected.Store(true)

	// Not every backend reports peer-initiated disconnects
	if notifier, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		lost := notifier.Disconnected()
		groutine.Go(context.Background(), "ble-disconnect-watch-"+addr.String(), func(ctx context.Context) {
			select {
			case <-lost:
				l.logger.WithField("address", addr).Debug("BLE stack reported disconnection")
				l.markDisconnected()
			case <-l.disconnected:
			}
		})
	}
	return l
}

func (l *link) markDisconnected() {
	l.markOnce.Do(func() {
		l.connected.Store(false)
		close(l.disconnected)
	})
}

func (l *link) Address() device.Address {
	return l.addr
}

func (l *link) IsConnected() bool {
	return l.connected.Load()
}

func (l *link) Disconnected() <-chan struct{} {
	return l.disconnected
}

// Services discovers the full GATT profile
func (l *link) Services() ([]device.Service, error) {
	profile, err := l.client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	services := make([]device.Service, 0, len(profile.Services))
	for _, svc := range profile.Services {
		chars := make([]device.Characteristic, 0, len(svc.Characteristics))
		for _, c := range svc.Characteristics {
			chars = append(chars, &characteristic{
				uuid:   device.NormalizeUUID(c.UUID.String()),
				char:   c,
				client: l.client,
			})
		}
		services = append(services, &service{
			uuid:  device.NormalizeUUID(svc.UUID.String()),
			chars: chars,
		})

		l.logger.WithFields(logrus.Fields{
			"service_uuid":    svc.UUID.String(),
			"characteristics": len(chars),
		}).Debug("Found service UUID")
	}
	return services, nil
}

// Close cancels the connection. Safe to call more than once.
func (l *link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = NormalizeError(l.client.CancelConnection())
		l.markDisconnected()
	})
	return err
}

type service struct {
	uuid  string
	chars []device.Characteristic
}

func (s *service) UUID() string {
	return s.uuid
}

func (s *service) Characteristics() ([]device.Characteristic, error) {
	return s.chars, nil
}

type characteristic struct {
	uuid   string
	char   *ble.Characteristic
	client ble.Client
}

func (c *characteristic) UUID() string {
	return c.uuid
}

// Write performs a write-with-response so failures surface to the caller
func (c *characteristic) Write(data []byte) error {
	return NormalizeError(c.client.WriteCharacteristic(c.char, data, false))
}
