package device

import (
	"context"
)

// ConnectionState is the state of a device's BLE link
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateDiscovering
	StateLinkEstablished
	StateCharacteristicResolved
	// StateDegraded marks a resolved link whose heartbeat write failed.
	// Command writes are refused until the device is reconnected.
	StateDegraded
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateDiscovering:
		return "discovering"
	case StateLinkEstablished:
		return "link_established"
	case StateCharacteristicResolved:
		return "characteristic_resolved"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Adapter is the host-side BLE radio: it reports device appearances and dials links.
type Adapter interface {
	// Scan reports every device appearance to handler until ctx is done or the
	// underlying stream is exhausted. A cancelled or expired ctx is not an error.
	Scan(ctx context.Context, handler func(Address)) error

	// Dial establishes a link-level connection to addr.
	Dial(ctx context.Context, addr Address) (Link, error)
}

// Link represents a live connection to a peripheral
type Link interface {
	Address() Address
	IsConnected() bool
	// Disconnected is closed when the peer drops the link.
	Disconnected() <-chan struct{}
	Services() ([]Service, error)
	Close() error
}

// Service represents a GATT service exposed by a Link
type Service interface {
	UUID() string
	Characteristics() ([]Characteristic, error)
}

// CharacteristicWriter provides write operations
type CharacteristicWriter interface {
	Write(data []byte) error
}

// Characteristic is a resolved, write-capable GATT characteristic
type Characteristic interface {
	UUID() string
	CharacteristicWriter
}

// LedDevice is the capability surface every lighting fixture implements
type LedDevice interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	OnEvent(ctx context.Context, ev Event) error
}
