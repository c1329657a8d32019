package testutils

import (
	"context"

	"github.com/srg/ledctl/internal/device"
	"github.com/stretchr/testify/mock"
)

// ScanFunc and DialFunc may be passed to Return to compute results per call
type (
	ScanFunc func(ctx context.Context, handler func(device.Address)) error
	DialFunc func(ctx context.Context, addr device.Address) (device.Link, error)
)

// MockAdapter is a testify mock of device.Adapter
type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) Scan(ctx context.Context, handler func(device.Address)) error {
	args := m.Called(ctx, handler)
	if fn, ok := args.Get(0).(ScanFunc); ok {
		return fn(ctx, handler)
	}
	return args.Error(0)
}

func (m *MockAdapter) Dial(ctx context.Context, addr device.Address) (device.Link, error) {
	args := m.Called(ctx, addr)
	if fn, ok := args.Get(0).(DialFunc); ok {
		return fn(ctx, addr)
	}
	var link device.Link
	if l := args.Get(0); l != nil {
		link = l.(device.Link)
	}
	return link, args.Error(1)
}
