// Package device defines the contracts shared by every part of the LED control
// stack: BLE addresses and UUIDs, the abstract lighting Event, the connection
// state machine states, the typed error taxonomy and the small adapter/link
// abstraction the connection manager consumes.
//
// The package is deliberately free of any concrete BLE host stack. The go-ble
// backed implementation lives in the go-ble subpackage; tests substitute mocks
// for the Adapter, Link, Service and Characteristic interfaces.
package device
