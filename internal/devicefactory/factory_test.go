package devicefactory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/internal/led"
	"github.com/srg/ledctl/internal/protocol/govee"
	"github.com/srg/ledctl/internal/testutils"
	"github.com/srg/ledctl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	deskAddr  = "A4:C1:38:00:11:22"
	shelfAddr = "A4:C1:38:00:33:44"
	espAddr   = "24:0A:C4:00:00:01"
	otherAddr = "11:22:33:44:55:66"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

// withAdapter replaces AdapterFactory for the duration of the test and counts its calls
func withAdapter(t *testing.T, adapter device.Adapter, err error) *int {
	t.Helper()
	calls := 0
	original := AdapterFactory
	AdapterFactory = func(*logrus.Logger) (device.Adapter, error) {
		calls++
		return adapter, err
	}
	t.Cleanup(func() { AdapterFactory = original })
	return &calls
}

func parseConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse(strings.NewReader(yaml))
	require.NoError(t, err)
	return cfg
}

func TestBuild_MixedVendors(t *testing.T) {
	// GOAL: Verify every vendor maps to its variant and Govee devices share one adapter
	//
	// TEST SCENARIO: two govee + esp + other → registry in config order, adapter opened once

	desk := testutils.CreateGoveePeripheral(deskAddr)
	shelf := testutils.CreateGoveePeripheral(shelfAddr)
	calls := withAdapter(t, testutils.BuildAdapter(desk, shelf), nil)

	cfg := parseConfig(t, `
devices:
  - address: `+deskAddr+`
  - address: `+espAddr+`
    vendor: esp
  - address: `+shelfAddr+`
  - address: `+otherAddr+`
    vendor: other
`)

	fleet, err := Build(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = fleet.Close(context.Background()) })

	assert.Equal(t, 1, *calls, "adapter MUST be opened once for all Govee devices")
	assert.NotNil(t, fleet.discovery)
	assert.Equal(t, []device.Address{deskAddr, espAddr, shelfAddr, otherAddr}, fleet.Registry.Addresses())

	kinds := make([]led.Kind, 0, 4)
	for _, d := range fleet.Registry.Devices() {
		kinds = append(kinds, d.Kind())
	}
	assert.Equal(t, []led.Kind{led.KindGovee, led.KindEsp, led.KindGovee, led.KindOther}, kinds)
}

func TestBuild_NoBLEDevices(t *testing.T) {
	calls := withAdapter(t, nil, errors.New("adapter MUST NOT be opened"))

	cfg := parseConfig(t, `
devices:
  - address: `+espAddr+`
    vendor: esp
  - address: `+otherAddr+`
    vendor: other
`)

	fleet, err := Build(cfg, testLogger())
	require.NoError(t, err)

	assert.Zero(t, *calls)
	assert.Nil(t, fleet.discovery)
	assert.Equal(t, 2, fleet.Registry.Len())
	assert.NoError(t, fleet.Close(context.Background()))
}

func TestBuild_AdapterError(t *testing.T) {
	withAdapter(t, nil, device.ErrBluetoothOff)

	cfg := parseConfig(t, "devices:\n  - address: "+deskAddr+"\n")

	fleet, err := Build(cfg, testLogger())

	assert.Nil(t, fleet)
	assert.ErrorIs(t, err, device.ErrBluetoothOff)
	assert.ErrorContains(t, err, "failed to open BLE adapter")
}

func TestBuild_RejectsUnvalidatedVendor(t *testing.T) {
	withAdapter(t, nil, errors.New("unused"))

	cfg := config.DefaultConfig()
	cfg.Devices = []config.DeviceConfig{{Address: deskAddr, Vendor: "philips"}}

	_, err := Build(cfg, testLogger())
	assert.ErrorContains(t, err, "devices[0]")
	assert.ErrorContains(t, err, `unknown device vendor "philips"`)
}

func TestOptions(t *testing.T) {
	cfg := parseConfig(t, `
connect_retries: 5
connect_timeout: 3s
keep_alive_interval: 750ms
command_rate: 12.5
devices:
  - address: a4-c1-38-00-11-22
`)

	opts, err := Options(cfg, cfg.Devices[0])
	require.NoError(t, err)

	assert.Equal(t, device.Address(deskAddr), opts.Address)
	assert.True(t, device.SameUUID(testutils.GoveeServiceUUID, opts.ServiceUUID))
	assert.True(t, device.SameUUID(testutils.GoveeCharacteristicUUID, opts.CharacteristicUUID))
	assert.Equal(t, 5, opts.MaxConnectRetries)
	assert.Equal(t, 3*time.Second, opts.ConnectTimeout)
	assert.Equal(t, 750*time.Millisecond, opts.KeepAliveInterval)
	assert.Equal(t, 12.5, opts.CommandRate)
	assert.Nil(t, opts.KeepAliveFrame, "Govee heartbeat MUST be filled in by the device variant")
}

func TestFleet_EndToEnd(t *testing.T) {
	// GOAL: Verify a configured Govee device is reachable through the registry
	//
	// TEST SCENARIO: Build → Connect → OnEvent(On) → Govee "on" frame written → Close disconnects

	desk := testutils.CreateGoveePeripheral(deskAddr)
	withAdapter(t, desk.Build(), nil)

	cfg := parseConfig(t, "keep_alive_interval: 1h\ndevices:\n  - address: "+deskAddr+"\n")
	fleet, err := Build(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, fleet.Registry.Connect(ctx, deskAddr))
	require.NoError(t, fleet.Registry.OnEvent(ctx, deskAddr, device.On()))

	char := desk.ControlCharacteristic()
	assert.Equal(t, 1, char.CountOf(govee.EncodeOn().Bytes()))

	require.NoError(t, fleet.Close(ctx))
	assert.Equal(t, 1, desk.LastLink().CloseCount())

	d, err := fleet.Registry.Get(deskAddr)
	require.NoError(t, err)
	assert.Equal(t, device.StateDisconnected, d.State())
}
