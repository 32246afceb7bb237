package bulk

import "context"

// Operation processes one batch.
//
// DoBulk is called with a non-empty batch of at most Config.BatchSize
// elements in queue order. A nil return acknowledges the batch. An error
// wrapped with Internal consumes the batch without retry; any other error
// is retried up to the configured ceiling. The same elements may be
// delivered more than once.
type Operation[E any] interface {
	DoBulk(ctx context.Context, batch []E) error
}

// OperationFunc adapts a function to Operation.
type OperationFunc[E any] func(ctx context.Context, batch []E) error

// DoBulk calls f(ctx, batch).
func (f OperationFunc[E]) DoBulk(ctx context.Context, batch []E) error {
	return f(ctx, batch)
}
