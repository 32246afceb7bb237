package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bft-labs/bulkq/pkg/durable"
	"github.com/bft-labs/bulkq/pkg/lifecycle"
	"github.com/bft-labs/bulkq/pkg/log"
)

func TestEngine_FIFOAndBatchSizeBound(t *testing.T) {
	rec := &recorder[int]{}
	e, err := New[int](testConfig(), rec)
	require.NoError(t, err)

	addAll(t, e, seq(0, 35)...)
	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return e.Backlog() == 0 }, 5*time.Second, time.Millisecond)
	stopEngine(t, e)

	assert.Equal(t, []int{10, 10, 10, 5}, rec.sizes())
	assert.Equal(t, seq(0, 35), rec.flat())
	assert.Equal(t, lifecycle.StateStopped, e.State())
}

func TestEngine_TwelveElementScenario(t *testing.T) {
	cfg := testConfig()
	cfg.InMemoryCapacity = 10
	cfg.BatchSize = 5
	cfg.MinBatchSizeForThrottle = 5
	cfg.BlockingEnqueue = true

	rec := &recorder[int]{}
	e, err := New[int](cfg, rec)
	require.NoError(t, err)

	addAll(t, e, seq(0, 10)...)
	blocked := make(chan struct{})
	go func() {
		defer close(blocked)
		for _, v := range []int{10, 11} {
			assert.NoError(t, e.Add(context.Background(), v))
		}
	}()

	require.NoError(t, e.Start())
	<-blocked
	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2 && e.QueueSize() == 2
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, []int{5, 5}, rec.sizes())

	stopEngine(t, e)
	assert.Equal(t, []int{5, 5, 2}, rec.sizes())
	assert.Equal(t, seq(0, 12), rec.flat())
	assert.Equal(t, int64(12), e.Counters().Value(QueueAdd))
	assert.Equal(t, int64(3), e.Counters().Value(BulkSuccess))
}

func TestEngine_ShutdownDrainsBacklog(t *testing.T) {
	cfg := testConfig()
	// Every cycle leaves the backlog below the threshold, so the loop naps
	// for an hour after the first batch and only Stop drains the rest.
	cfg.MinBatchSizeForThrottle = 1000

	core, logs := observer.New(zap.DebugLevel)
	rec := &recorder[int]{}
	e, err := New[int](cfg, rec, WithLogger(log.NewZapAdapter(zap.New(core))))
	require.NoError(t, err)

	addAll(t, e, seq(0, 42)...)
	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, 32, e.Backlog())

	stopEngine(t, e)
	assert.Equal(t, 0, e.Backlog())
	assert.Equal(t, []int{10, 10, 10, 10, 2}, rec.sizes())
	assert.Equal(t, seq(0, 42), rec.flat())
	assert.GreaterOrEqual(t, logs.FilterMessage("do not kill, will stop after processing backlog").Len(), 1)
}

func TestEngine_NonBlockingRejects(t *testing.T) {
	cfg := testConfig()
	cfg.InMemoryCapacity = 2
	cfg.BlockingEnqueue = false

	e, err := New[string](cfg, &recorder[string]{})
	require.NoError(t, err)

	require.NoError(t, e.Add(context.Background(), "a"))
	require.NoError(t, e.Add(context.Background(), "b"))
	assert.ErrorIs(t, e.Add(context.Background(), "c"), ErrQueueFull)

	assert.Equal(t, int64(2), e.Counters().Value(QueueAdd))
	assert.Equal(t, int64(1), e.Counters().Value(QueueAddFailure))
	assert.Equal(t, 2, e.QueueSize())
}

func TestEngine_BlockingAddHonoursContext(t *testing.T) {
	cfg := testConfig()
	cfg.InMemoryCapacity = 1

	e, err := New[string](cfg, &recorder[string]{})
	require.NoError(t, err)
	require.NoError(t, e.Add(context.Background(), "a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Add(ctx, "b"), context.DeadlineExceeded)
	assert.Equal(t, int64(1), e.Counters().Value(QueueAddFailure))
}

func TestEngine_LifecycleErrors(t *testing.T) {
	e, err := New[int](testConfig(), &recorder[int]{})
	require.NoError(t, err)

	assert.ErrorIs(t, e.Stop(context.Background()), ErrNotStarted)
	require.NoError(t, e.Start())
	assert.ErrorIs(t, e.Start(), ErrAlreadyStarted)

	stopEngine(t, e)
	stopEngine(t, e)
	assert.ErrorIs(t, e.Add(context.Background(), 1), ErrStopped)
	assert.ErrorIs(t, e.Start(), ErrStopped)
}

func TestEngine_StopTimeoutKeepsDraining(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			entered := make(chan struct{})
			release := make(chan struct{})
			var once sync.Once
			rec := &recorder[int]{handler: func(int, []int) error {
				once.Do(func() { close(entered) })
				<-release
				return nil
			}}
			cfg := testConfig()
			cfg.ParallelDispatch = parallel
			e, err := New[int](cfg, rec)
			require.NoError(t, err)
			addAll(t, e, 1)
			require.NoError(t, e.Start())
			<-entered

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			assert.ErrorIs(t, e.Stop(ctx), ErrShutdownTimeout)
			assert.Equal(t, lifecycle.StateStopping, e.State())
			assert.ErrorIs(t, e.Add(context.Background(), 2), ErrStopped)
			if parallel {
				assert.LessOrEqual(t, e.poolWorkers(), cfg.ParallelWorkerCount)
			}

			close(release)
			stopEngine(t, e)
			assert.Equal(t, lifecycle.StateStopped, e.State())
			assert.Equal(t, []int{1}, rec.flat())
		})
	}
}

func TestEngine_CounterConservation(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 3
	cfg.RetryEnabled = false

	rec := &recorder[int]{handler: func(call int, _ []int) error {
		switch {
		case call%5 == 0:
			return Internal(errors.New("malformed"))
		case call%3 == 0:
			return errors.New("transient")
		}
		return nil
	}}
	e, err := New[int](cfg, rec)
	require.NoError(t, err)

	addAll(t, e, seq(0, 40)...)
	require.NoError(t, e.Start())
	stopEngine(t, e)

	c := e.Counters()
	batches := int64(len(rec.snapshot()))
	assert.Equal(t, int64(40), c.Value(QueueAdd))
	assert.Equal(t, batches, c.Value(BulkSuccess)+c.Value(BulkFailure)+c.Value(InternalError))
	assert.Equal(t, c.Value(BulkFailure), c.Value(BulkError))
	assert.Zero(t, c.Value(BulkRetry))
}

func TestEngine_RetryUntilCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.RetryCeiling = 2
	cfg.RetryBackoff = time.Millisecond

	rec := &recorder[int]{handler: func(int, []int) error { return errors.New("down") }}
	e, err := New[int](cfg, rec)
	require.NoError(t, err)
	addAll(t, e, 1, 2)

	e.DoBulk()

	assert.Len(t, rec.snapshot(), 3)
	c := e.Counters()
	assert.Equal(t, int64(3), c.Value(BulkError))
	assert.Equal(t, int64(2), c.Value(BulkRetry))
	assert.Equal(t, int64(1), c.Value(BulkFailure))
	assert.Zero(t, c.Value(BulkSuccess))
}

func TestEngine_InternalFaultsAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		handler func(int, []string) error
	}{
		{"wrapped error", func(int, []string) error { return Internal(errors.New("bad element")) }},
		{"panic", func(int, []string) error {
			var m map[string]int
			m["x"] = 1
			return nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder[string]{handler: tt.handler}
			e, err := New[string](testConfig(), rec)
			require.NoError(t, err)
			addAll(t, e, "a")

			e.DoBulk()

			assert.Len(t, rec.snapshot(), 1)
			assert.Equal(t, int64(1), e.Counters().Value(InternalError))
			assert.Zero(t, e.Counters().Value(BulkError))
			assert.Equal(t, 0, e.Backlog())
		})
	}
}

func TestEngine_EmptyCycleIsNoop(t *testing.T) {
	rec := &recorder[int]{}
	e, err := New[int](testConfig(), rec, WithDurableQueue(durable.NewMemoryQueue()))
	require.NoError(t, err)

	e.DoBulk()
	assert.Empty(t, rec.snapshot())
	assert.Zero(t, e.Counters().Value(BulkSuccess))
}

func TestEngine_Collector(t *testing.T) {
	e, err := New[int](testConfig(), &recorder[int]{})
	require.NoError(t, err)
	addAll(t, e, 1)

	assert.Equal(t, 2*len(Statuses), testutil.CollectAndCount(e.Collector("test")))
}

func TestEngine_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	_, err := New[int](cfg, &recorder[int]{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New[int](testConfig(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
