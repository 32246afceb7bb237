package bulk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recorder is an Operation that records every call.
type recorder[E any] struct {
	mu      sync.Mutex
	calls   [][]E
	handler func(call int, batch []E) error
}

func (r *recorder[E]) DoBulk(_ context.Context, batch []E) error {
	r.mu.Lock()
	r.calls = append(r.calls, append([]E(nil), batch...))
	n := len(r.calls)
	r.mu.Unlock()
	if r.handler != nil {
		return r.handler(n, batch)
	}
	return nil
}

func (r *recorder[E]) snapshot() [][]E {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]E, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recorder[E]) sizes() []int {
	var out []int
	for _, b := range r.snapshot() {
		out = append(out, len(b))
	}
	return out
}

func (r *recorder[E]) flat() []E {
	var out []E
	for _, b := range r.snapshot() {
		out = append(out, b...)
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	cfg.InMemoryCapacity = 100
	cfg.BatchSize = 10
	cfg.MinBatchSizeForThrottle = 1
	return cfg
}

func stopEngine[E any](t *testing.T, e *Engine[E]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
}

func addAll[E any](t *testing.T, e *Engine[E], items ...E) {
	t.Helper()
	for _, v := range items {
		require.NoError(t, e.Add(context.Background(), v))
	}
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
