package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinnet/go-mculink/logger"
)

func TestManager_StartAndStop(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	var count atomic.Int32
	err := mgr.Start("counter", func() bool {
		count.Add(1)
		time.Sleep(time.Millisecond)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, mgr.TaskCount())

	time.Sleep(20 * time.Millisecond)
	mgr.Stop()
	mgr.Wait()

	assert.Equal(t, 0, mgr.TaskCount())
	assert.Positive(t, count.Load())
}

func TestManager_TaskStopsItself(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	var count atomic.Int32
	err := mgr.Start("oneshot", func() bool {
		count.Add(1)
		return false
	})
	require.NoError(t, err)

	mgr.Wait()
	assert.Equal(t, int32(1), count.Load())
	assert.Equal(t, 0, mgr.TaskCount())
}

func TestManager_PanicRecovery(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	err := mgr.Start("panicky", func() bool {
		panic("boom")
	})
	require.NoError(t, err)

	// The panic must not crash the process; the task terminates.
	mgr.Wait()
	assert.Equal(t, 0, mgr.TaskCount())
}

func TestManager_StartInterval(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	var count atomic.Int32
	ticker, err := mgr.StartInterval("poller", func() bool {
		count.Add(1)
		return true
	}, 5*time.Millisecond, true)
	require.NoError(t, err)
	require.NotNil(t, ticker)

	// runNow executes once synchronously before the ticker starts.
	assert.GreaterOrEqual(t, count.Load(), int32(1))

	time.Sleep(50 * time.Millisecond)
	assert.Greater(t, count.Load(), int32(2))

	mgr.Stop()
	mgr.Wait()
}

func TestManager_StartInterval_DuplicateName(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	_, err := mgr.StartInterval("dup", func() bool { return true }, 10*time.Millisecond, false)
	require.NoError(t, err)

	_, err = mgr.StartInterval("dup", func() bool { return true }, 10*time.Millisecond, false)
	require.Error(t, err)

	mgr.Stop()
	mgr.Wait()
}

func TestManager_StartInterval_InvalidInterval(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	_, err := mgr.StartInterval("bad", func() bool { return true }, 0, false)
	require.Error(t, err)
}

func TestManager_StopInterval(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	_, err := mgr.StartInterval("poller", func() bool { return true }, 10*time.Millisecond, false)
	require.NoError(t, err)

	require.NoError(t, mgr.StopInterval("poller"))
	require.Error(t, mgr.StopInterval("poller"), "second stop should report missing ticker")

	mgr.Stop()
	mgr.Wait()
}

func TestManager_StartAfterStop(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())
	mgr.Stop()

	err := mgr.Start("late", func() bool { return true })
	require.Error(t, err)
}
