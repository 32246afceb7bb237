package bulk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/bft-labs/bulkq/pkg/log"
)

func TestDispatcher_CallerRunsWhenSaturated(t *testing.T) {
	var wg sync.WaitGroup
	track := func() func() {
		wg.Add(1)
		return wg.Done
	}
	d, err := newDispatcher(1, 0, track, log.NewNoopLogger())
	require.NoError(t, err)
	defer d.Release()

	block := make(chan struct{})
	started := make(chan struct{})
	assert.False(t, d.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	var ran atomic.Bool
	assert.True(t, d.Submit(func() { ran.Store(true) }), "saturated pool runs on the caller")
	assert.True(t, ran.Load())

	close(block)
	wg.Wait()
}

func TestDispatcher_QueuedTasksRun(t *testing.T) {
	var wg sync.WaitGroup
	track := func() func() {
		wg.Add(1)
		return wg.Done
	}
	d, err := newDispatcher(1, 4, track, log.NewNoopLogger())
	require.NoError(t, err)
	defer d.Release()

	block := make(chan struct{})
	started := make(chan struct{})
	d.Submit(func() {
		close(started)
		<-block
	})
	<-started

	var count atomic.Int64
	for i := 0; i < 4; i++ {
		assert.False(t, d.Submit(func() { count.Inc() }))
	}
	close(block)
	wg.Wait()
	d.Flush()
	assert.Equal(t, int64(4), count.Load())
}

func TestDispatcher_PanicDoesNotLeakTracking(t *testing.T) {
	var wg sync.WaitGroup
	track := func() func() {
		wg.Add(1)
		return wg.Done
	}
	d, err := newDispatcher(2, 0, track, log.NewNoopLogger())
	require.NoError(t, err)
	defer d.Release()

	d.Submit(func() { panic("boom") })
	wg.Wait()
}

func TestDispatcher_RunningCountsLiveWorkers(t *testing.T) {
	d, err := newDispatcher(2, 0, func() func() { return func() {} }, log.NewNoopLogger())
	require.NoError(t, err)
	defer d.Release()

	block := make(chan struct{})
	started := make(chan struct{})
	d.Submit(func() {
		close(started)
		<-block
	})
	<-started
	assert.Equal(t, 1, d.Running())

	close(block)
	assert.Eventually(t, func() bool { return d.Running() == 0 }, 10*time.Second, 10*time.Millisecond, "idle worker expires")
}

// Each task must run without a later Submit or Flush, even when it is queued
// while the only worker is on its way back to the pool.
func TestDispatcher_QueuedTaskNeverWaitsForNextSubmit(t *testing.T) {
	d, err := newDispatcher(1, 1, func() func() { return func() {} }, log.NewNoopLogger())
	require.NoError(t, err)
	defer d.Release()

	var count atomic.Int64
	for i := 1; i <= 500; i++ {
		d.Submit(func() { count.Inc() })
		want := int64(i)
		require.Eventually(t, func() bool { return count.Load() == want }, time.Second, 50*time.Microsecond,
			"task %d stuck in the queue", i)
	}
}

func TestDispatcher_PanicKeepsDrainingQueue(t *testing.T) {
	d, err := newDispatcher(1, 4, func() func() { return func() {} }, log.NewNoopLogger())
	require.NoError(t, err)
	defer d.Release()

	block := make(chan struct{})
	started := make(chan struct{})
	d.Submit(func() {
		close(started)
		<-block
	})
	<-started

	var count atomic.Int64
	d.Submit(func() { panic("boom") })
	d.Submit(func() { count.Inc() })
	close(block)

	assert.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, time.Millisecond)
}
