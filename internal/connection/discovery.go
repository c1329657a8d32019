package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/internal/groutine"
)

// DefaultScanTimeout bounds each Find
const DefaultScanTimeout = 10 * time.Second

// waiter is the pending Find state for one address. Concurrent Finds for the
// same address share it; refs counts them and is guarded by Discovery.mu.
type waiter struct {
	once  sync.Once
	done  chan struct{}
	found bool
	err   error
	refs  int
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

func (w *waiter) resolve(found bool, err error) {
	w.once.Do(func() {
		w.found = found
		w.err = err
		close(w.done)
	})
}

func (w *waiter) result() error {
	if w.found {
		return nil
	}
	return w.err
}

// Discovery multiplexes one adapter scan session across every pending Find.
// The first Find starts a session; later calls join it. Every Find carries its
// own scan timeout, and the session ends once no address is awaited.
type Discovery struct {
	adapter device.Adapter
	timeout time.Duration
	logger  *logrus.Logger

	// waiters is read lock-free from the adapter's advertisement callback
	waiters *hashmap.Map[device.Address, *waiter]

	mu         sync.Mutex
	cancelScan context.CancelFunc
	sessions   int
}

// NewDiscovery creates a discovery broker for adapter. A non-positive timeout uses DefaultScanTimeout.
func NewDiscovery(adapter device.Adapter, timeout time.Duration, logger *logrus.Logger) *Discovery {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &Discovery{
		adapter: adapter,
		timeout: timeout,
		logger:  logger,
		waiters: hashmap.New[device.Address, *waiter](),
	}
}

// Find blocks until addr is seen by the adapter. It returns a *device.NotFoundError
// when the scan timeout passes (or the session ends) without a match and
// ctx.Err() when ctx is done first.
func (d *Discovery) Find(ctx context.Context, addr device.Address) error {
	w := d.register(addr)

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return w.result()
	case <-timer.C:
		if d.release(addr, w) {
			return w.result()
		}
		return &device.NotFoundError{Resource: "device", UUIDs: []string{addr.String()}}
	case <-ctx.Done():
		if d.release(addr, w) {
			return w.result()
		}
		return ctx.Err()
	}
}

// register adds (or joins) a waiter for addr and makes sure a session is running.
func (d *Discovery) register(addr device.Address) *waiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, _ := d.waiters.GetOrInsert(addr, newWaiter())
	w.refs++

	if d.cancelScan == nil {
		d.startSessionLocked()
	}
	return w
}

// release drops one Find's interest in w. It reports whether w was already
// resolved, in which case its result wins over the caller's timeout.
func (d *Discovery) release(addr device.Address, w *waiter) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-w.done:
		return true
	default:
	}

	w.refs--
	if w.refs == 0 {
		if cur, ok := d.waiters.Get(addr); ok && cur == w {
			d.waiters.Del(addr)
		}
		d.logger.WithField("address", addr).Debug("Stopped waiting for device")
	}
	d.stopIfIdleLocked()
	return false
}

func (d *Discovery) startSessionLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancelScan = cancel
	d.sessions++
	session := d.sessions

	d.logger.WithFields(logrus.Fields{
		"session": session,
		"timeout": d.timeout,
	}).Info("Starting BLE discovery session")

	groutine.Go(ctx, fmt.Sprintf("ble-discovery-%d", session), func(ctx context.Context) {
		err := d.adapter.Scan(ctx, d.handleAppearance)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
		cancel()
		d.finishSession(session, err)
	})
}

// handleAppearance runs on the adapter's callback goroutine
func (d *Discovery) handleAppearance(addr device.Address) {
	w, ok := d.waiters.Get(addr)
	if !ok {
		return
	}

	d.logger.WithField("address", addr).Info("Found device")
	w.resolve(true, nil)

	d.mu.Lock()
	if cur, ok := d.waiters.Get(addr); ok && cur == w {
		d.waiters.Del(addr)
	}
	d.stopIfIdleLocked()
	d.mu.Unlock()
}

func (d *Discovery) stopIfIdleLocked() {
	if d.waiters.Len() == 0 && d.cancelScan != nil {
		d.logger.Debug("No pending discoveries, ending scan session early")
		d.cancelScan()
		// The next Find starts a fresh session instead of joining the dying one
		d.cancelScan = nil
	}
}

// finishSession fails every waiter still pending when the adapter stops scanning
func (d *Discovery) finishSession(session int, scanErr error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sessions != session {
		// A newer session already owns the waiters
		return
	}
	d.cancelScan = nil

	var pending []device.Address
	d.waiters.Range(func(addr device.Address, _ *waiter) bool {
		pending = append(pending, addr)
		return true
	})

	for _, addr := range pending {
		w, ok := d.waiters.Get(addr)
		if !ok {
			continue
		}
		d.waiters.Del(addr)
		if scanErr != nil {
			w.resolve(false, fmt.Errorf("discovery of %s failed: %w", addr, scanErr))
		} else {
			w.resolve(false, &device.NotFoundError{Resource: "device", UUIDs: []string{addr.String()}})
		}
	}

	logFields := logrus.Fields{"session": session, "unmatched": len(pending)}
	if scanErr != nil {
		d.logger.WithFields(logFields).WithField("error", scanErr).Error("BLE discovery session failed")
		return
	}
	d.logger.WithFields(logFields).Info("BLE discovery session ended")
}
