package bulk

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bft-labs/bulkq/pkg/durable"
	"github.com/bft-labs/bulkq/pkg/log"
)

// run is the background loop. It exits once stopping was requested and
// both queues are empty.
func (e *Engine[E]) run() {
	defer e.lc.WorkerDone()

	last := -1
	for {
		if e.lc.IsStopping() {
			backlog := e.Backlog()
			if backlog == 0 && e.addsInFlight.Load() == 0 {
				break
			}
			e.logger.Warn("do not kill, will stop after processing backlog", log.Int("backlog", backlog))
			if last >= 0 && backlog >= last {
				time.Sleep(stallPause)
			}
			last = backlog
		}

		e.cycle()

		if e.Backlog() < e.cfg.MinBatchSizeForThrottle && !e.lc.IsStopping() {
			e.sleep()
		}
	}

	if e.dispatcher != nil {
		e.dispatcher.Flush()
	}
	e.logger.Info("bulk loop stopped")
}

func (e *Engine[E]) cycle() {
	if e.dispatcher != nil {
		e.dispatcher.Submit(e.safeDoBulk)
		return
	}
	e.safeDoBulk()
}

// sleep waits for PollInterval or until Stop is requested.
func (e *Engine[E]) sleep() {
	if e.cfg.PollInterval <= 0 {
		return
	}
	t := time.NewTimer(e.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-e.lc.Stopping():
	}
}

func (e *Engine[E]) safeDoBulk() {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("bulk cycle panicked", log.Any("panic", r))
		}
	}()
	e.DoBulk()
}

// DoBulk assembles one batch and dispatches it. It is what the background
// loop runs each cycle; calling it directly runs a cycle on the caller.
//
// Without a durable queue the batch is drained from memory. Otherwise the
// primary source (see Priority) fills the batch and the other one tops it
// up. In drain mode durable records are removed as they are read; in peek
// mode they are removed only after the batch was consumed.
func (e *Engine[E]) DoBulk() {
	switch {
	case e.durable == nil:
		batch := make(durable.Buffer[E], 0, e.cfg.BatchSize)
		e.drainMemory(&batch, e.cfg.BatchSize)
		if len(batch) > 0 {
			e.invoke(batch)
		}
	case e.cfg.PeekEnabled:
		e.peekCycle()
	default:
		e.drainCycle()
	}
}

func (e *Engine[E]) drainCycle() {
	batch := make(durable.Buffer[E], 0, e.cfg.BatchSize)
	if e.cfg.memoryFirst() {
		e.drainMemory(&batch, e.cfg.BatchSize)
		e.drainDurable(&batch, e.cfg.BatchSize-len(batch))
	} else {
		e.drainDurable(&batch, e.cfg.BatchSize)
		e.drainMemory(&batch, e.cfg.BatchSize-len(batch))
	}
	if len(batch) > 0 {
		e.invoke(batch)
	}
}

func (e *Engine[E]) peekCycle() {
	e.peekMu.Lock()
	defer e.peekMu.Unlock()

	batch := make(durable.Buffer[E], 0, e.cfg.BatchSize)
	var peeked int
	if e.cfg.memoryFirst() {
		e.drainMemory(&batch, e.cfg.BatchSize)
		peeked = e.peekDurable(&batch, e.cfg.BatchSize-len(batch))
	} else {
		peeked = e.peekDurable(&batch, e.cfg.BatchSize)
		e.drainMemory(&batch, e.cfg.BatchSize-len(batch))
	}

	// Records that were all corrupt and skipped still have to go.
	if len(batch) == 0 || e.invoke(batch) {
		e.ack(peeked)
	}
}

func (e *Engine[E]) ack(n int) {
	if n == 0 {
		return
	}
	if err := e.durable.Remove(n); err != nil {
		e.logger.Error("failed to remove acknowledged records", log.Int("count", n), log.Err(err))
	}
}

func (e *Engine[E]) drainMemory(dst *durable.Buffer[E], n int) int {
	for i := 0; i < n; i++ {
		select {
		case v := <-e.mem:
			dst.Append(v)
		default:
			return i
		}
	}
	return n
}

func (e *Engine[E]) drainDurable(dst *durable.Buffer[E], n int) {
	if n <= 0 || e.durable.Size() == 0 {
		return
	}
	if _, err := e.durable.DrainTo(dst, n); err != nil {
		e.logger.Error("durable drain failed", log.Err(err))
	}
}

func (e *Engine[E]) peekDurable(dst *durable.Buffer[E], n int) int {
	if n <= 0 || e.durable.Size() == 0 {
		return 0
	}
	read, err := e.durable.PeekTo(dst, n)
	if err != nil {
		e.logger.Error("durable peek failed", log.Err(err))
	}
	return read
}

// invoke calls the operation until it succeeds, reports an internal fault
// or runs out of attempts. It reports whether the batch was consumed.
func (e *Engine[E]) invoke(batch []E) bool {
	attempts := e.cfg.attempts()
	bo := e.retryBackOff()

	for attempt := 1; ; attempt++ {
		err := e.call(batch)
		switch {
		case err == nil:
			e.counters.Increment(BulkSuccess)
			return true
		case IsInternal(err):
			e.counters.Increment(InternalError)
			e.logger.Error("internal error in bulk operation, batch dropped",
				log.Int("size", len(batch)), log.Err(err))
			return true
		}

		e.counters.Increment(BulkError)
		e.logger.Error("error in bulk operation",
			log.Int("size", len(batch)), log.Int("attempt", attempt), log.Err(err))
		if attempt >= attempts {
			e.counters.Increment(BulkFailure)
			e.logger.Error("bulk operation failed, batch abandoned",
				log.Int("size", len(batch)), log.Int("attempts", attempt))
			return false
		}

		e.counters.Increment(BulkRetry)
		e.wait(bo.NextBackOff())
	}
}

// call runs the operation and turns a panic into an internal fault.
func (e *Engine[E]) call(batch []E) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Internal(fmt.Errorf("bulk operation panicked: %v", r))
		}
	}()
	return e.op.DoBulk(e.ctx, batch)
}

func (e *Engine[E]) retryBackOff() backoff.BackOff {
	if e.cfg.RetryBackoff <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryBackoff
	b.MaxInterval = 64 * e.cfg.RetryBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (e *Engine[E]) wait(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-e.ctx.Done():
	}
}
