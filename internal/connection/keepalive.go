package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/groutine"
)

// DefaultKeepAliveInterval is the heartbeat period that keeps Govee controllers from dropping idle links
const DefaultKeepAliveInterval = 2 * time.Second

// WriteFunc writes one frame to the bound characteristic
type WriteFunc func(ctx context.Context, data []byte) error

// KeepAliveOptions configures a heartbeat task
type KeepAliveOptions struct {
	Name     string // goroutine label
	Interval time.Duration
	Frame    []byte
}

// KeepAlive is the handle of a running heartbeat task
type KeepAlive struct {
	cancel   context.CancelFunc
	done     <-chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error
}

// StartKeepAlive writes opts.Frame immediately and then every opts.Interval
// until Stop is called or a write fails. On failure the error is logged,
// onFailure is invoked once from the task goroutine and the task ends; it must
// not block on the task itself.
func StartKeepAlive(ctx context.Context, opts KeepAliveOptions, write WriteFunc, onFailure func(error), logger *logrus.Logger) *KeepAlive {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultKeepAliveInterval
	}
	if opts.Name == "" {
		opts.Name = "keepalive"
	}

	frame := make([]byte, len(opts.Frame))
	copy(frame, opts.Frame)

	taskCtx, cancel := context.WithCancel(ctx)
	k := &KeepAlive{cancel: cancel}

	k.done = groutine.Spawn(taskCtx, opts.Name, func(ctx context.Context) {
		log := logger.WithField("task", opts.Name)
		log.WithField("interval", opts.Interval).Debug("Keep-alive started")

		// beat reports whether the task should keep running
		beat := func() bool {
			err := write(ctx, frame)
			if err == nil {
				log.Trace("Keep-alive sent")
				return true
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Debug("Keep-alive stopped during write")
				return false
			}

			log.WithField("error", err).Error("Keep-alive write failed, stopping heartbeat")
			k.mu.Lock()
			k.err = err
			k.mu.Unlock()
			if onFailure != nil {
				onFailure(err)
			}
			return false
		}

		// First heartbeat goes out right away, then once per interval
		if ctx.Err() != nil || !beat() {
			return
		}

		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Debug("Keep-alive stopped")
				return
			case <-ticker.C:
				// select picks randomly when both are ready
				if ctx.Err() != nil {
					log.Debug("Keep-alive stopped")
					return
				}
				if !beat() {
					return
				}
			}
		}
	})

	return k
}

// Stop cancels the task and waits for it to exit. After Stop returns the task
// performs no further writes. Safe to call multiple times and from any goroutine.
func (k *KeepAlive) Stop() {
	if k == nil {
		return
	}
	k.stopOnce.Do(k.cancel)
	<-k.done
}

// failure returns the write error that terminated the task, if any
func (k *KeepAlive) failure() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.err
}
