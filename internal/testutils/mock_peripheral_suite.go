package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// MockPeripheralSuite provides a reusable test suite backed by a scripted LED
// peripheral and a mocked adapter.
//
// Basic usage (default Govee peripheral at DefaultPeripheralAddress):
//
//	type ManagerSuite struct {
//	    testutils.MockPeripheralSuite
//	}
//
//	func TestManagerSuite(t *testing.T) {
//	    suite.Run(t, new(ManagerSuite))
//	}
//
// Custom peripheral usage:
//
//	func (s *ManagerSuite) SetupTest() {
//	    s.WithPeripheral(testutils.CreateGoveePeripheral(addr).WithDialFailures(2, errBusy))
//	    s.MockPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	TestTimeout time.Duration

	Peripheral *PeripheralDeviceBuilder
	Adapter    *MockAdapter
}

// SetupSuite is called once before all tests in the suite.
func (s *MockPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second
	s.Logger.Debug("Suite setup completed")
}

// SetupTest builds the adapter from the configured peripheral.
func (s *MockPeripheralSuite) SetupTest() {
	if s.Peripheral == nil {
		s.Peripheral = CreateGoveePeripheral(DefaultPeripheralAddress)
	}
	s.Adapter = s.Peripheral.Build()
	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest resets the peripheral after each test.
func (s *MockPeripheralSuite) TearDownTest() {
	s.Peripheral = nil
	s.Adapter = nil
}

// WithPeripheral replaces the default peripheral; call before SetupTest.
func (s *MockPeripheralSuite) WithPeripheral(p *PeripheralDeviceBuilder) *PeripheralDeviceBuilder {
	s.Peripheral = p
	return p
}

// WaitFor waits for cond using the suite timeout
func (s *MockPeripheralSuite) WaitFor(cond func() bool, msgAndArgs ...interface{}) bool {
	return s.Eventually(cond, s.TestTimeout, 5*time.Millisecond, msgAndArgs...)
}
