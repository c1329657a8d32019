// Package connection owns the BLE link of a single lighting device.
//
// A Manager drives the per-device state machine
//
//	Disconnected -> Discovering -> LinkEstablished -> CharacteristicResolved
//
// resetting to Disconnected on Disconnect, on any connect failure and when the
// peer drops the link. Once the control characteristic is resolved the manager
// starts a KeepAlive task; both the task and command writes go through a single
// Writer so only one GATT write is ever in flight per characteristic.
//
// Discovery multiplexes one adapter scan session across every device that is
// currently connecting. Each waiting device has its own scan timeout.
package connection
