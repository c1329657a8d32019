package testutils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/internal/protocol/govee"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeripheralDeviceBuilder_DialReturnsFreshLinks(t *testing.T) {
	p := CreateGoveePeripheral(DefaultPeripheralAddress)
	adapter := p.Build()

	first, err := adapter.Dial(context.Background(), p.Address())
	require.NoError(t, err)
	second, err := adapter.Dial(context.Background(), p.Address())
	require.NoError(t, err)

	assert.NotSame(t, first, second, "every dial MUST return a new link")
	assert.Equal(t, 2, p.Dials())

	services, err := first.Services()
	require.NoError(t, err)
	require.Len(t, services, 1)
	chars, err := services[0].Characteristics()
	require.NoError(t, err)
	require.Len(t, chars, 1)

	require.NoError(t, chars[0].Write([]byte{0x01}))
	assert.Equal(t, [][]byte{{0x01}}, p.ControlCharacteristic().Writes(), "links MUST share the recording characteristic")
}

func TestPeripheralDeviceBuilder_DialFailures(t *testing.T) {
	errBusy := errors.New("busy")
	p := CreateGoveePeripheral(DefaultPeripheralAddress).WithDialFailures(2, errBusy)
	adapter := p.Build()

	for i := 0; i < 2; i++ {
		_, err := adapter.Dial(context.Background(), p.Address())
		assert.ErrorIs(t, err, errBusy)
	}
	link, err := adapter.Dial(context.Background(), p.Address())
	require.NoError(t, err)
	assert.True(t, link.IsConnected())
	assert.Equal(t, 3, p.Dials())

	_, err = adapter.Dial(context.Background(), device.MustParseAddress("00:00:00:00:00:01"))
	assert.Error(t, err, "unknown peripherals MUST be unreachable")
}

func TestPeripheralDeviceBuilder_ScanAdvertisesUntilCancelled(t *testing.T) {
	silent := CreateGoveePeripheral("11:22:33:44:55:66").WithoutAdvertisement()
	loud := CreateGoveePeripheral(DefaultPeripheralAddress)
	adapter := BuildAdapter(silent, loud)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	seen := make(map[device.Address]int)
	err := adapter.Scan(ctx, func(addr device.Address) { seen[addr]++ })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, seen[loud.Address()], 1, "advertising peripheral MUST be reported repeatedly")
	assert.Zero(t, seen[silent.Address()])
}

func TestFakeLink_DropAndClose(t *testing.T) {
	link := NewFakeLink(device.MustParseAddress(DefaultPeripheralAddress))

	link.Drop()
	select {
	case <-link.Disconnected():
	default:
		t.Fatal("Disconnected MUST be closed after Drop")
	}
	assert.False(t, link.IsConnected())

	require.NoError(t, link.Close())
	require.NoError(t, link.Close())
	assert.Equal(t, 2, link.CloseCount())
}

func TestRecordingCharacteristic_FailWrites(t *testing.T) {
	c := NewRecordingCharacteristic(GoveeCharacteristicUUID)
	errGATT := errors.New("gatt failure")

	require.NoError(t, c.Write([]byte{1}))
	c.FailWrites(errGATT)
	assert.ErrorIs(t, c.Write([]byte{2}), errGATT)
	c.FailWrites(nil)
	require.NoError(t, c.Write([]byte{1}))

	assert.Equal(t, 2, c.WriteCount())
	assert.Equal(t, 2, c.CountOf([]byte{1}))
	assert.Equal(t, 1, c.MaxInFlight())
}

func TestJSONAsserter_Diff(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		actual   string
		expected string
		equal    bool
	}{
		{
			name:     "identical",
			actual:   `{"a":1,"b":[1,2]}`,
			expected: `{"a":1,"b":[1,2]}`,
			equal:    true,
		},
		{
			name:     "extra keys ignored by default",
			actual:   `{"a":1,"extra":true}`,
			expected: `{"a":1}`,
			equal:    true,
		},
		{
			name:     "extra keys reported when not ignored",
			opts:     []Option{WithIgnoreExtraKeys(false)},
			actual:   `{"a":1,"extra":true}`,
			expected: `{"a":1}`,
		},
		{
			name:     "presence placeholder",
			actual:   `{"id":"x-123","ok":true}`,
			expected: `{"id":"<<PRESENCE>>","ok":true}`,
			equal:    true,
		},
		{
			name:     "ignored field",
			opts:     []Option{WithIgnoredFields("ts")},
			actual:   `[{"ts":1,"v":2}]`,
			expected: `[{"ts":9,"v":2}]`,
			equal:    true,
		},
		{
			name:     "value mismatch",
			actual:   `{"a":1}`,
			expected: `{"a":2}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ja := NewJSONAsserter(t).WithOptions(tt.opts...)
			diff := ja.diff(tt.actual, tt.expected)
			if tt.equal {
				assert.Empty(t, diff)
			} else {
				assert.NotEmpty(t, diff)
			}
		})
	}
}

type recordingT struct {
	failures []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, format)
}

func TestTextAsserter(t *testing.T) {
	rt := &recordingT{}
	ta := NewTextAsserter(rt)

	ta.Assert("line one  \nline two\n", "line one\nline two")
	assert.Empty(t, rt.failures, "trailing whitespace MUST be ignored by default")

	ta.Assert("line one\nline 2", "line one\nline two")
	require.Len(t, rt.failures, 1)
	assert.Contains(t, ta.diff("line one\nline 2", "line one\nline two"), "+line 2")
}

func TestRecordingCharacteristic_CommandsSkipHeartbeats(t *testing.T) {
	c := NewRecordingCharacteristic(GoveeCharacteristicUUID)

	require.NoError(t, c.Write(govee.KeepAlive().Bytes()))
	require.NoError(t, c.Write(govee.EncodeOn().Bytes()))
	require.NoError(t, c.Write(govee.KeepAlive().Bytes()))

	assert.Equal(t, [][]byte{govee.EncodeOn().Bytes()}, c.Commands())
	assert.Equal(t, 3, c.WriteCount())
}
