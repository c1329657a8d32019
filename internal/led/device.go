// Package led dispatches lighting events to vendor-specific device variants.
//
// Device is a closed set: GoveeLed drives a real BLE controller, StubLed stands
// in for ESP firmware that has no BLE protocol yet, and UnknownLed accepts and
// logs everything for unsupported hardware.
package led

import (
	"fmt"
	"strings"

	"github.com/srg/ledctl/internal/device"
)

// Kind identifies a device variant
type Kind string

const (
	KindGovee Kind = "govee"
	KindEsp   Kind = "esp"
	KindOther Kind = "other"
)

// ParseKind maps a configured vendor name onto a Kind
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindGovee, KindEsp, KindOther:
		return k, nil
	default:
		return "", fmt.Errorf("unknown device vendor %q (expected govee, esp or other)", s)
	}
}

// Device is implemented only by the variants in this package
type Device interface {
	device.LedDevice

	Address() device.Address
	Kind() Kind
	State() device.ConnectionState

	sealed()
}

// Info is a point-in-time description of a registered device
type Info struct {
	Address device.Address `json:"address"`
	Kind    Kind           `json:"kind"`
	State   string         `json:"state"`
}

// Describe snapshots d
func Describe(d Device) Info {
	return Info{Address: d.Address(), Kind: d.Kind(), State: d.State().String()}
}
