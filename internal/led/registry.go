package led

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Registry holds the configured devices in registration order and routes
// operations to them by address.
type Registry struct {
	mu      sync.RWMutex
	devices *orderedmap.OrderedMap[device.Address, Device]
	logger  *logrus.Logger
}

func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		devices: orderedmap.New[device.Address, Device](),
		logger:  logger,
	}
}

// Add registers d. Registering the same address twice is an error.
func (r *Registry) Add(d Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices.Get(d.Address()); exists {
		return fmt.Errorf("device %s is already registered", d.Address())
	}
	r.devices.Set(d.Address(), d)

	r.logger.WithFields(logrus.Fields{
		"address": d.Address(),
		"kind":    d.Kind(),
	}).Debug("Device registered")
	return nil
}

// Get returns the device at addr or a *device.NotFoundError
func (r *Registry) Get(addr device.Address) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices.Get(addr)
	if !ok {
		return nil, &device.NotFoundError{Resource: "device", UUIDs: []string{addr.String()}}
	}
	return d, nil
}

// Lookup parses a user-supplied address and returns its device
func (r *Registry) Lookup(addr string) (Device, error) {
	a, err := device.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return r.Get(a)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices.Len()
}

// Addresses returns every registered address in registration order
func (r *Registry) Addresses() []device.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]device.Address, 0, r.devices.Len())
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Devices returns every registered device in registration order
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, r.devices.Len())
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Describe snapshots every registered device
func (r *Registry) Describe() []Info {
	devices := r.Devices()
	out := make([]Info, 0, len(devices))
	for _, d := range devices {
		out = append(out, Describe(d))
	}
	return out
}

func (r *Registry) Connect(ctx context.Context, addr device.Address) error {
	d, err := r.Get(addr)
	if err != nil {
		return err
	}
	return d.Connect(ctx)
}

func (r *Registry) Disconnect(ctx context.Context, addr device.Address) error {
	d, err := r.Get(addr)
	if err != nil {
		return err
	}
	return d.Disconnect(ctx)
}

func (r *Registry) OnEvent(ctx context.Context, addr device.Address, ev device.Event) error {
	d, err := r.Get(addr)
	if err != nil {
		return err
	}
	return d.OnEvent(ctx, ev)
}

// Close disconnects every device and joins the errors
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, d := range r.Devices() {
		if err := d.Disconnect(ctx); err != nil {
			r.logger.WithFields(logrus.Fields{
				"address": d.Address(),
				"error":   err,
			}).Warn("Failed to disconnect device")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
