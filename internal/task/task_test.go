package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-eol/logger"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(context.Background(), logger.NewMockLogger().AllowAll())
}

func TestManager_StartStop(t *testing.T) {
	mgr := newTestManager(t)

	var iterations atomic.Int32
	require.NoError(t, mgr.Start("loop", func(ctx context.Context) bool {
		iterations.Add(1)
		select {
		case <-ctx.Done():
		case <-time.After(time.Millisecond):
		}
		return true
	}))

	assert.Eventually(t, func() bool { return iterations.Load() > 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, mgr.TaskCount())

	mgr.Stop()
	mgr.Wait()
	assert.Equal(t, 0, mgr.TaskCount())
}

func TestManager_TaskReturnsFalse(t *testing.T) {
	mgr := newTestManager(t)

	require.NoError(t, mgr.Start("once", func(context.Context) bool { return false }))
	mgr.Wait()
	assert.Equal(t, 0, mgr.TaskCount())
}

func TestManager_PanicRecovered(t *testing.T) {
	mgr := newTestManager(t)

	var calls atomic.Int32
	require.NoError(t, mgr.Start("panicky", func(context.Context) bool {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return false
	}))
	mgr.Wait()
	assert.Equal(t, int32(2), calls.Load(), "loop continues after a recovered panic")
}

func TestManager_StartAfterStop(t *testing.T) {
	mgr := newTestManager(t)
	mgr.Stop()

	err := mgr.Start("late", func(context.Context) bool { return false })
	require.ErrorIs(t, err, ErrStopped)

	mgr.Wait()
	require.NoError(t, mgr.Start("rearmed", func(context.Context) bool { return false }))
	mgr.Wait()
}

func TestStartConsumer(t *testing.T) {
	mgr := newTestManager(t)
	in := make(chan int)
	got := make(chan int, 3)

	require.NoError(t, StartConsumer(mgr, "consumer", in, func(_ context.Context, v int) bool {
		got <- v
		return v != 3
	}))

	in <- 1
	in <- 2
	in <- 3
	mgr.Wait()

	assert.Equal(t, 1, <-got)
	assert.Equal(t, 2, <-got)
	assert.Equal(t, 3, <-got)

	err := StartConsumer[int](mgr, "nil", nil, nil)
	require.Error(t, err)
}
