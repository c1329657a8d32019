package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srg/ledctl/internal/protocol/govee"
	"github.com/srg/ledctl/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = 10 * time.Millisecond

func TestKeepAlive_SendsFrameEveryInterval(t *testing.T) {
	char := testutils.NewRecordingCharacteristic(testutils.GoveeCharacteristicUUID)
	w := NewWriter(char)
	frame := govee.KeepAlive().Bytes()

	ka := StartKeepAlive(context.Background(), KeepAliveOptions{Interval: testInterval, Frame: frame}, w.Write, nil, nil)
	defer ka.Stop()

	require.Eventually(t, func() bool { return char.CountOf(frame) >= 3 }, time.Second, time.Millisecond,
		"heartbeat MUST be written repeatedly")
	assert.Equal(t, char.WriteCount(), char.CountOf(frame), "only the keep-alive frame MUST be written")
	assert.NoError(t, ka.failure())
}

func TestKeepAlive_FirstFrameIsImmediate(t *testing.T) {
	char := testutils.NewRecordingCharacteristic(testutils.GoveeCharacteristicUUID)
	frame := govee.KeepAlive().Bytes()

	ka := StartKeepAlive(context.Background(), KeepAliveOptions{Interval: time.Hour, Frame: frame}, NewWriter(char).Write, nil, nil)
	defer ka.Stop()

	require.Eventually(t, func() bool { return char.CountOf(frame) == 1 }, time.Second, time.Millisecond,
		"first heartbeat MUST NOT wait a full interval")
}

func TestKeepAlive_StopHaltsWrites(t *testing.T) {
	// GOAL: Verify no heartbeat is written after Stop returns
	//
	// TEST SCENARIO: start heartbeat → wait for two frames → Stop → wait several intervals → count unchanged

	char := testutils.NewRecordingCharacteristic(testutils.GoveeCharacteristicUUID)
	w := NewWriter(char)
	frame := govee.KeepAlive().Bytes()

	ka := StartKeepAlive(context.Background(), KeepAliveOptions{Interval: testInterval, Frame: frame}, w.Write, nil, nil)
	require.Eventually(t, func() bool { return char.WriteCount() >= 2 }, time.Second, time.Millisecond)

	ka.Stop()
	ka.Stop()
	stopped := char.WriteCount()

	time.Sleep(3 * testInterval)
	assert.Equal(t, stopped, char.WriteCount(), "heartbeat MUST NOT write after Stop")

	select {
	case <-ka.done:
	default:
		t.Fatal("task MUST have exited after Stop")
	}
}

func TestKeepAlive_FailureEndsTask(t *testing.T) {
	char := testutils.NewRecordingCharacteristic(testutils.GoveeCharacteristicUUID)
	errGATT := errors.New("link lost")
	char.FailWrites(errGATT)
	w := NewWriter(char)

	var failures atomic.Int32
	ka := StartKeepAlive(context.Background(), KeepAliveOptions{Interval: testInterval, Frame: []byte{0xAA}}, w.Write,
		func(err error) {
			assert.ErrorIs(t, err, errGATT)
			failures.Add(1)
		}, nil)

	select {
	case <-ka.done:
	case <-time.After(time.Second):
		t.Fatal("task MUST end after a failed write")
	}

	assert.Equal(t, int32(1), failures.Load(), "onFailure MUST be invoked exactly once")
	assert.ErrorIs(t, ka.failure(), errGATT)

	ka.Stop()
}

func TestKeepAlive_ParentContextStopsTask(t *testing.T) {
	char := testutils.NewRecordingCharacteristic(testutils.GoveeCharacteristicUUID)
	ctx, cancel := context.WithCancel(context.Background())

	ka := StartKeepAlive(ctx, KeepAliveOptions{Interval: testInterval, Frame: []byte{0xAA}}, NewWriter(char).Write, func(error) {
		t.Error("cancellation MUST NOT count as a failure")
	}, nil)
	cancel()

	select {
	case <-ka.done:
	case <-time.After(time.Second):
		t.Fatal("task MUST end when its parent context is cancelled")
	}
	assert.NoError(t, ka.failure())
}

func TestKeepAlive_NilStop(t *testing.T) {
	var ka *KeepAlive
	assert.NotPanics(t, ka.Stop)
}
