package bulk

import (
	"errors"
	"fmt"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"

	"github.com/bft-labs/bulkq/pkg/log"
)

// dispatcher runs tasks on a fixed pool of workers with a bounded backlog.
// When every worker is busy and the backlog is full the submitting
// goroutine runs the task itself.
type dispatcher struct {
	pool   *ants.Pool
	queued chan func()
	track  func() func()
	logger log.Logger

	// active counts workers that will look at queued again before exiting.
	active atomic.Int32
	// pending counts tasks in queued.
	pending atomic.Int32
}

// newDispatcher creates a dispatcher. track is called on the submitting
// goroutine for every task and returns the function to call once the task
// finished.
func newDispatcher(workers, backlog int, track func() func(), logger log.Logger) (*dispatcher, error) {
	d := &dispatcher{
		queued: make(chan func(), backlog),
		track:  track,
		logger: logger,
	}
	pool, err := ants.NewPool(
		workers,
		ants.WithNonblocking(true),
		ants.WithPreAlloc(true),
		ants.WithPanicHandler(func(p interface{}) {
			logger.Error("dispatch worker panicked", log.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk: create worker pool: %w", err)
	}
	d.pool = pool
	return d, nil
}

// Submit runs task on a free worker, queues it, or runs it on the caller.
// It reports whether the caller ran the task.
func (d *dispatcher) Submit(task func()) bool {
	done := d.track()
	run := func() {
		defer done()
		task()
	}

	err := d.spawn(run)
	if err == nil {
		return false
	}
	if !errors.Is(err, ants.ErrPoolOverload) {
		d.logger.Warn("worker pool rejected task", log.Err(err))
	}

	select {
	case d.queued <- run:
		d.pending.Inc()
		if d.active.Load() == 0 {
			d.wake()
		}
		return false
	default:
	}
	run()
	return true
}

// wake starts a worker for queued tasks nobody is going to pick up. If the
// pool has no free slot they run on the caller.
func (d *dispatcher) wake() {
	if err := d.spawn(nil); err != nil {
		d.Flush()
	}
}

// spawn counts the worker as active before it is handed to the pool.
func (d *dispatcher) spawn(first func()) error {
	d.active.Inc()
	if err := d.pool.Submit(d.worker(first)); err != nil {
		d.active.Dec()
		return err
	}
	return nil
}

// worker runs first and then keeps taking queued tasks until none is left.
// It re-checks after leaving the active set so a task queued in between is
// seen either by it or by the submitter.
func (d *dispatcher) worker(first func()) func() {
	return func() {
		if first != nil {
			d.runSafe(first)
		}
		for {
			select {
			case next := <-d.queued:
				d.pending.Dec()
				d.runSafe(next)
				continue
			default:
			}
			d.active.Dec()
			if d.pending.Load() <= 0 {
				return
			}
			d.active.Inc()
		}
	}
}

// runSafe keeps a panicking task from taking its worker down while it is
// still counted as active.
func (d *dispatcher) runSafe(task func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch worker panicked", log.Any("panic", r))
		}
	}()
	task()
}

// Flush runs every queued task on the caller.
func (d *dispatcher) Flush() {
	for {
		select {
		case next := <-d.queued:
			d.pending.Dec()
			next()
		default:
			return
		}
	}
}

// Running returns the number of live pool workers. Idle workers count
// until the pool expires them.
func (d *dispatcher) Running() int {
	return d.pool.Running()
}

// Release frees the pool. Tasks still running finish on their own.
func (d *dispatcher) Release() {
	d.pool.Release()
}
