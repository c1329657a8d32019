package device

import (
	"errors"
	"fmt"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "device", "service", "characteristic"
	UUIDs    []string // One or more identifiers (e.g., [address], [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionError reports a link-level connect failure after the retry bound was exhausted
type ConnectionError struct {
	Address  Address
	Attempts int
	Err      error // last underlying cause
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("failed to connect to %s after %d attempt(s): %v", e.Address, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// MalformedInputError is returned when an input cannot be encoded or parsed
type MalformedInputError struct {
	Input  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input %q: %s", e.Input, e.Reason)
}

// WriteError wraps a failed GATT characteristic write
type WriteError struct {
	Characteristic string
	Err            error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to characteristic %s failed: %v", e.Characteristic, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Sentinel errors
var (
	ErrNotConnected = errors.New("device not connected")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
)

// IsNotFound reports whether err is a NotFoundError for the given resource.
// An empty resource matches any NotFoundError.
func IsNotFound(err error, resource string) bool {
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return false
	}
	return resource == "" || nf.Resource == resource
}
