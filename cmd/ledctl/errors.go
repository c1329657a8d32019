package main

import (
	"errors"
	"fmt"

	"github.com/srg/ledctl/internal/device"
)

// FormatUserError turns typed device errors into operator-facing messages
func FormatUserError(err error) string {
	var (
		notFound  *device.NotFoundError
		connErr   *device.ConnectionError
		malformed *device.MalformedInputError
		writeErr  *device.WriteError
	)

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or no adapter is available"
	case errors.As(err, &connErr):
		return fmt.Sprintf("could not connect to %s after %d attempt(s): %v", connErr.Address, connErr.Attempts, connErr.Err)
	case errors.As(err, &notFound) && notFound.Resource == "device":
		return fmt.Sprintf("%s (is it powered on, in range and listed in the config?)", notFound.Error())
	case errors.As(err, &notFound):
		return fmt.Sprintf("%s (check the service and characteristic UUIDs in the config)", notFound.Error())
	case errors.Is(err, device.ErrNotConnected):
		return fmt.Sprintf("%v (connect the device first)", err)
	case errors.As(err, &malformed):
		return fmt.Sprintf("invalid input %q: %s", malformed.Input, malformed.Reason)
	case errors.As(err, &writeErr):
		return fmt.Sprintf("failed to send command: %v", writeErr.Err)
	default:
		return err.Error()
	}
}
