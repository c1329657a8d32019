package connection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/internal/groutine"
	"golang.org/x/time/rate"
)

// DefaultMaxConnectRetries is the number of extra dial attempts after the first one fails
const DefaultMaxConnectRetries = 2

// Options configures a Manager
type Options struct {
	Address            device.Address
	ServiceUUID        string
	CharacteristicUUID string

	// MaxConnectRetries bounds dial retries; attempts = MaxConnectRetries + 1. No backoff.
	MaxConnectRetries int
	// ConnectTimeout bounds each dial attempt (0 = no bound)
	ConnectTimeout time.Duration

	KeepAliveInterval time.Duration
	KeepAliveFrame    []byte

	// CommandRate limits command writes in frames per second (0 = unlimited).
	// Heartbeats are not rate limited.
	CommandRate  float64
	CommandBurst int
}

// DefaultOptions returns options with the protocol defaults filled in
func DefaultOptions(addr device.Address, serviceUUID, charUUID string) Options {
	return Options{
		Address:            addr,
		ServiceUUID:        serviceUUID,
		CharacteristicUUID: charUUID,
		MaxConnectRetries:  DefaultMaxConnectRetries,
		KeepAliveInterval:  DefaultKeepAliveInterval,
	}
}

// Manager owns the BLE link of one device and drives its connection state machine
type Manager struct {
	opts      Options
	adapter   device.Adapter
	discovery *Discovery
	logger    *logrus.Logger
	limiter   *rate.Limiter

	// opMu serializes Connect and Disconnect
	opMu sync.Mutex

	state atomic.Int32

	// linkMu guards the live handles below
	linkMu      sync.RWMutex
	link        device.Link
	writer      *Writer
	keepAlive   *KeepAlive
	monitorStop context.CancelFunc
	monitorDone <-chan struct{}
}

// NewManager validates opts and creates a disconnected manager. A nil discovery
// gets a private one; devices sharing an adapter should share a Discovery.
func NewManager(opts Options, adapter device.Adapter, discovery *Discovery, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if strings.TrimSpace(opts.Address.String()) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	uuids, err := device.ValidateUUID(opts.ServiceUUID, opts.CharacteristicUUID)
	if err != nil {
		return nil, err
	}
	opts.ServiceUUID, opts.CharacteristicUUID = uuids[0], uuids[1]
	if opts.MaxConnectRetries < 0 {
		opts.MaxConnectRetries = 0
	}
	if discovery == nil {
		discovery = NewDiscovery(adapter, 0, logger)
	}

	m := &Manager{
		opts:      opts,
		adapter:   adapter,
		discovery: discovery,
		logger:    logger,
	}
	if opts.CommandRate > 0 {
		burst := opts.CommandBurst
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(opts.CommandRate), burst)
	}
	return m, nil
}

// Address returns the managed device address
func (m *Manager) Address() device.Address {
	return m.opts.Address
}

// State returns the current connection state
func (m *Manager) State() device.ConnectionState {
	return device.ConnectionState(m.state.Load())
}

func (m *Manager) setState(s device.ConnectionState) {
	prev := device.ConnectionState(m.state.Swap(int32(s)))
	if prev != s {
		m.logger.WithFields(logrus.Fields{
			"address": m.opts.Address,
			"from":    prev,
			"to":      s,
		}).Debug("Connection state changed")
	}
}

// Connect brings the device to CharacteristicResolved. It is a no-op when the
// device is already resolved and its link reports connected. On failure the
// manager is left Disconnected with no partial state.
func (m *Manager) Connect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	addr := m.opts.Address
	log := m.logger.WithField("address", addr)

	if m.State() == device.StateCharacteristicResolved {
		m.linkMu.RLock()
		link := m.link
		m.linkMu.RUnlock()
		if link != nil && link.IsConnected() {
			log.Info("Device already connected")
			return nil
		}
	}

	// Degraded or silently dropped links are rebuilt from scratch
	if err := m.teardown(); err != nil {
		log.WithField("error", err).Warn("Failed to close stale link")
	}

	m.setState(device.StateDiscovering)
	log.Info("Discovering device...")
	if err := m.discovery.Find(ctx, addr); err != nil {
		m.setState(device.StateDisconnected)
		return err
	}

	link, err := m.dial(ctx)
	if err != nil {
		m.setState(device.StateDisconnected)
		return err
	}
	m.setState(device.StateLinkEstablished)
	log.Info("Successfully connected")

	char, err := m.resolve(link)
	if err != nil {
		if closeErr := link.Close(); closeErr != nil {
			log.WithField("error", closeErr).Warn("Failed to close link after resolution failure")
		}
		m.setState(device.StateDisconnected)
		return err
	}

	m.install(link, char)

	log.WithFields(logrus.Fields{
		"service_uuid": m.opts.ServiceUUID,
		"char_uuid":    m.opts.CharacteristicUUID,
	}).Info("Control characteristic resolved")
	return nil
}

// dial attempts the link-level connect MaxConnectRetries+1 times without delay
func (m *Manager) dial(ctx context.Context) (device.Link, error) {
	attempts := m.opts.MaxConnectRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dialCtx, cancel := ctx, context.CancelFunc(func() {})
		if m.opts.ConnectTimeout > 0 {
			dialCtx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		}
		link, err := m.adapter.Dial(dialCtx, m.opts.Address)
		cancel()
		if err == nil {
			return link, nil
		}

		lastErr = err
		m.logger.WithFields(logrus.Fields{
			"address":  m.opts.Address,
			"attempt":  attempt,
			"attempts": attempts,
			"error":    err,
		}).Warn("Error while connecting")
	}

	return nil, &device.ConnectionError{Address: m.opts.Address, Attempts: attempts, Err: lastErr}
}

// resolve finds the configured service, then the characteristic within it
func (m *Manager) resolve(link device.Link) (device.Characteristic, error) {
	services, err := link.Services()
	if err != nil {
		return nil, fmt.Errorf("failed to discover services on %s: %w", m.opts.Address, err)
	}

	for _, svc := range services {
		if !device.SameUUID(svc.UUID(), m.opts.ServiceUUID) {
			continue
		}
		m.logger.WithField("service_uuid", m.opts.ServiceUUID).Debug("Found service")

		chars, err := svc.Characteristics()
		if err != nil {
			return nil, fmt.Errorf("failed to discover characteristics of service %s: %w", m.opts.ServiceUUID, err)
		}
		for _, c := range chars {
			if device.SameUUID(c.UUID(), m.opts.CharacteristicUUID) {
				return c, nil
			}
		}
		return nil, &device.NotFoundError{
			Resource: "characteristic",
			UUIDs:    []string{m.opts.ServiceUUID, m.opts.CharacteristicUUID},
		}
	}

	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{m.opts.ServiceUUID}}
}

// install publishes the resolved handles and starts the background tasks
func (m *Manager) install(link device.Link, char device.Characteristic) {
	writer := NewWriter(char)
	addr := m.opts.Address

	m.linkMu.Lock()
	defer m.linkMu.Unlock()

	m.link = link
	m.writer = writer
	m.setState(device.StateCharacteristicResolved)

	// Vendors without a heartbeat frame run without keep-alive
	if len(m.opts.KeepAliveFrame) > 0 {
		m.keepAlive = StartKeepAlive(context.Background(), KeepAliveOptions{
			Name:     "keepalive-" + addr.String(),
			Interval: m.opts.KeepAliveInterval,
			Frame:    m.opts.KeepAliveFrame,
		}, writer.Write, m.markDegraded, m.logger)
	}

	monitorCtx, stop := context.WithCancel(context.Background())
	m.monitorStop = stop
	m.monitorDone = groutine.Spawn(monitorCtx, "ble-link-monitor-"+addr.String(), func(ctx context.Context) {
		select {
		case <-link.Disconnected():
			m.handleLinkLoss(link)
		case <-ctx.Done():
		}
	})
}

// markDegraded is called from the keep-alive goroutine when a heartbeat fails
func (m *Manager) markDegraded(err error) {
	if m.state.CompareAndSwap(int32(device.StateCharacteristicResolved), int32(device.StateDegraded)) {
		m.logger.WithFields(logrus.Fields{
			"address": m.opts.Address,
			"error":   err,
		}).Warn("Connection degraded: keep-alive write failed")
	}
}

// handleLinkLoss runs on the monitor goroutine when the peer drops the link
func (m *Manager) handleLinkLoss(link device.Link) {
	m.linkMu.Lock()
	if m.link != link {
		m.linkMu.Unlock()
		return
	}
	keepAlive, writer := m.keepAlive, m.writer
	m.link, m.writer, m.keepAlive = nil, nil, nil
	m.setState(device.StateDisconnected)
	m.linkMu.Unlock()

	m.logger.WithField("address", m.opts.Address).Warn("Device dropped the link")

	keepAlive.Stop()
	if writer != nil {
		writer.Close()
	}
	if err := link.Close(); err != nil {
		m.logger.WithField("error", err).Debug("Closing lost link failed")
	}
}

// teardown releases every live handle and leaves the manager Disconnected
func (m *Manager) teardown() error {
	m.linkMu.Lock()
	link, writer, keepAlive := m.link, m.writer, m.keepAlive
	stop, done := m.monitorStop, m.monitorDone
	m.link, m.writer, m.keepAlive = nil, nil, nil
	m.monitorStop, m.monitorDone = nil, nil
	m.setState(device.StateDisconnected)
	m.linkMu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	keepAlive.Stop()
	if writer != nil {
		writer.Close()
	}
	if link != nil {
		return link.Close()
	}
	return nil
}

// Disconnect stops the keep-alive, releases the characteristic and closes the
// link. Disconnecting a disconnected device succeeds.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	log := m.logger.WithField("address", m.opts.Address)

	m.linkMu.RLock()
	idle := m.link == nil && m.monitorDone == nil
	m.linkMu.RUnlock()
	if idle {
		m.setState(device.StateDisconnected)
		log.Debug("Disconnect called but already disconnected")
		return nil
	}

	log.Info("Disconnecting...")
	if err := m.teardown(); err != nil {
		log.WithField("error", err).Warn("Device disconnected with errors")
		return fmt.Errorf("failed to disconnect from %s: %w", m.opts.Address, err)
	}
	log.Info("Device disconnected successfully")
	return nil
}

// Write sends a command frame. It fails with device.ErrNotConnected unless the
// device is CharacteristicResolved, and never reconnects on its own.
func (m *Manager) Write(ctx context.Context, data []byte) error {
	m.linkMu.RLock()
	writer := m.writer
	state := m.State()
	m.linkMu.RUnlock()

	if state == device.StateDegraded {
		return fmt.Errorf("%w: connection to %s is degraded, reconnect required", device.ErrNotConnected, m.opts.Address)
	}
	if writer == nil || state != device.StateCharacteristicResolved {
		return device.ErrNotConnected
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return writer.Write(ctx, data)
}
