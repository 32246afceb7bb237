// Package bulk implements a micro-batching engine.
//
// Producers call [Engine.Add]; a background loop assembles batches of at
// most Config.BatchSize elements from a bounded in-memory queue and, when
// configured, a durable overflow queue, and hands them to an [Operation].
// Failed batches are retried synchronously within the same cycle.
//
// In peek mode durable records are removed only after the operation
// succeeds, which gives at-least-once delivery for the durable source.
// Operations must therefore be idempotent.
//
// Every outcome is counted per engine in a [counter.Counter] keyed by
// [Status]:
//
//	e, err := bulk.New(bulk.DefaultConfig(), bulk.OperationFunc[string](post))
//	if err != nil {
//		return err
//	}
//	if err := e.Start(); err != nil {
//		return err
//	}
//	defer e.Stop(context.Background())
package bulk
