// Package bulkq batches elements added by many producers and hands them to a
// bulk operation, optionally spilling to a write-ahead log on disk.
//
// Example usage:
//
//	cfg := bulkq.DefaultConfig()
//	cfg.BatchSize = 500
//	cfg.DurableQueueDir = "/var/lib/myapp"
//	e, err := bulkq.Start(cfg, bulk.OperationFunc[string](func(ctx context.Context, batch []string) error {
//	    return store.InsertMany(ctx, batch)
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop(context.Background())
//	_ = e.Add(ctx, "record")
//
// Functions are adapted to an operation with bulk.OperationFunc.
package bulkq

import (
	"github.com/bft-labs/bulkq/pkg/bulk"
)

// Config holds the engine configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = bulk.Config

// Option configures optional behavior of an engine.
type Option = bulk.Option

// Status identifies an engine outcome counted by Engine.Counters.
type Status = bulk.Status

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return bulk.DefaultConfig()
}

// New creates an engine that is not yet started.
func New[E any](cfg Config, op bulk.Operation[E], opts ...Option) (*bulk.Engine[E], error) {
	return bulk.New(cfg, op, opts...)
}

// Start creates an engine and starts its loop.
// The caller must Stop it to drain the backlog and release the durable queue.
func Start[E any](cfg Config, op bulk.Operation[E], opts ...Option) (*bulk.Engine[E], error) {
	e, err := bulk.New(cfg, op, opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Start(); err != nil {
		return nil, err
	}
	return e, nil
}

// Internal marks err as a non-retryable fault of an operation.
func Internal(err error) error {
	return bulk.Internal(err)
}

var (
	ErrQueueFull       = bulk.ErrQueueFull
	ErrStopped         = bulk.ErrStopped
	ErrInvalidConfig   = bulk.ErrInvalidConfig
	ErrShutdownTimeout = bulk.ErrShutdownTimeout
)
