package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// Context returns a context cancelled after timeout or at test cleanup, whichever comes first.
func (h *TestHelper) Context(timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	h.T.Cleanup(cancel)
	return ctx
}

func CreateMockPeripheralDevice(addr string) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder(addr)
}

func CreateMockPeripheralDeviceFromJSON(addr string, jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder(addr).FromJSON(jsonStrFmt, args...)
}

// CreateGoveePeripheral creates a peripheral exposing the Govee control service
func CreateGoveePeripheral(addr string) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder(addr).
		WithService(GoveeServiceUUID).
		WithCharacteristic(GoveeCharacteristicUUID)
}
