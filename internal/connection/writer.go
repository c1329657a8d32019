package connection

import (
	"context"
	"sync"

	"github.com/srg/ledctl/internal/device"
)

// Writer serializes every write to one characteristic: at most one write is in
// flight at a time, and no write reaches the characteristic after Close returns.
type Writer struct {
	mu     sync.Mutex
	char   device.Characteristic
	closed bool
}

// NewWriter binds a writer to a resolved characteristic
func NewWriter(char device.Characteristic) *Writer {
	return &Writer{char: char}
}

// Write sends data to the characteristic. It returns ErrNotConnected once the
// writer is closed and a *device.WriteError when the GATT write fails.
func (w *Writer) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return device.ErrNotConnected
	}
	// Re-check after waiting for the lock; a queued write may have outlived its caller
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := w.char.Write(data); err != nil {
		return &device.WriteError{Characteristic: w.char.UUID(), Err: err}
	}
	return nil
}

// Close waits for any in-flight write and refuses all further writes. Idempotent.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}
