package groutine

import (
	"context"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpawn_NameAndLabels(t *testing.T) {
	var gotName, gotLabel string

	done := Spawn(context.Background(), "keepalive-test", func(ctx context.Context) {
		gotName = GetName(ctx)
		gotLabel, _ = pprof.Label(ctx, "goroutine_name")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not finish")
	}

	assert.Equal(t, "keepalive-test", gotName)
	assert.Equal(t, "keepalive-test", gotLabel)
}

func TestSpawn_NilParent(t *testing.T) {
	//nolint:staticcheck // nil parent is part of the contract
	done := Spawn(nil, "nil-parent", func(ctx context.Context) {
		assert.NotNil(t, ctx)
	})
	<-done
}

func TestSpawn_ObservesParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := Spawn(ctx, "waiter", func(ctx context.Context) {
		<-ctx.Done()
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not observe cancellation")
	}
}

func TestGo(t *testing.T) {
	ran := make(chan string, 1)
	Go(context.Background(), "fire-and-forget", func(ctx context.Context) {
		ran <- GetName(ctx)
	})

	select {
	case name := <-ran:
		assert.Equal(t, "fire-and-forget", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGetName_Empty(t *testing.T) {
	assert.Equal(t, "", GetName(context.Background()))
	//nolint:staticcheck // nil context is handled
	assert.Equal(t, "", GetName(nil))
}
