package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"

	"github.com/bft-labs/bulkq/pkg/codec"
	"github.com/bft-labs/bulkq/pkg/counter"
	"github.com/bft-labs/bulkq/pkg/durable"
	"github.com/bft-labs/bulkq/pkg/lifecycle"
	"github.com/bft-labs/bulkq/pkg/log"
)

// stallPause throttles the loop while stopping when a cycle made no
// progress, e.g. a batch that keeps failing in peek mode.
const stallPause = 10 * time.Millisecond

// Engine batches elements and hands them to an Operation.
type Engine[E any] struct {
	cfg      Config
	op       Operation[E]
	logger   log.Logger
	counters *counter.Counter[Status]
	lc       *lifecycle.Manager

	mem     chan E
	durable *durable.Typed[E]
	// peekMu serializes peek, invoke and acknowledge so concurrent cycles
	// never remove each other's durable prefix.
	peekMu sync.Mutex

	dispatcher   *dispatcher
	addsInFlight atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	gcStop chan struct{}
	gcDone chan struct{}

	finishOnce sync.Once
	finishErr  error
}

// New validates cfg and creates an engine in the Idle state. A durable
// queue is opened when cfg.DurableQueueDir is set or WithDurableQueue is
// given.
func New[E any](cfg Config, op Operation[E], opts ...Option) (*Engine[E], error) {
	if op == nil {
		return nil, fmt.Errorf("%w: nil operation", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.OrNoop(o.logger).With(log.String("component", "bulk"))

	e := &Engine[E]{
		cfg:      cfg,
		op:       op,
		logger:   logger,
		counters: counter.New(Statuses...),
		mem:      make(chan E, cfg.InMemoryCapacity),
	}
	e.lc = lifecycle.NewManager(logger, o.emitter)
	e.ctx, e.cancel = context.WithCancel(context.Background())

	if err := e.openDurable(o); err != nil {
		e.cancel()
		return nil, err
	}

	if cfg.ParallelDispatch {
		track := func() func() {
			e.lc.AddWorker()
			return e.lc.WorkerDone
		}
		d, err := newDispatcher(cfg.ParallelWorkerCount, cfg.ParallelQueueCapacity, track, logger)
		if err != nil {
			e.cancel()
			if e.durable != nil {
				_ = e.durable.Close()
			}
			return nil, err
		}
		e.dispatcher = d
	}

	if cfg.FileBased && e.durable == nil {
		logger.Warn("file-based mode without a durable queue, using memory only")
	}
	return e, nil
}

func (e *Engine[E]) openDurable(o options) error {
	q := o.queue
	if q == nil && e.cfg.DurableQueueDir != "" {
		wq, err := durable.OpenWAL(e.cfg.DurableQueueDir, e.cfg.DurableQueueName, o.walOptions)
		if err != nil {
			return fmt.Errorf("bulk: open durable queue: %w", err)
		}
		q = wq
	}
	if q == nil {
		return nil
	}

	topts := []durable.TypedOption[E]{
		durable.WithLogger[E](e.logger),
		durable.WithCorruptHandler[E](func(error) { e.counters.Increment(CorruptRecord) }),
	}
	if o.codec != nil {
		c, ok := o.codec.(codec.Codec[E])
		if !ok {
			_ = q.Close()
			return fmt.Errorf("%w: codec %T does not match element type", ErrInvalidConfig, o.codec)
		}
		topts = append(topts, durable.WithCodec(c))
	}
	if o.placeholder != nil {
		v, ok := o.placeholder.(E)
		if !ok {
			_ = q.Close()
			return fmt.Errorf("%w: placeholder %T does not match element type", ErrInvalidConfig, o.placeholder)
		}
		topts = append(topts, durable.WithPlaceholder(v))
	}
	e.durable = durable.NewTyped[E](q, topts...)
	return nil
}

// Start launches the background loop and, with a durable queue, the GC
// ticker.
func (e *Engine[E]) Start() error {
	if err := e.lc.TransitionTo(lifecycle.StateRunning, "start"); err != nil {
		if e.lc.State() == lifecycle.StateRunning {
			return ErrAlreadyStarted
		}
		return ErrStopped
	}

	if e.durable != nil {
		e.gcStop = make(chan struct{})
		e.gcDone = make(chan struct{})
		go e.runGC()
	}

	e.lc.AddWorker()
	go e.run()

	e.logger.Info("bulk engine started",
		log.Int("batch_size", e.cfg.BatchSize),
		log.Int("capacity", e.cfg.InMemoryCapacity),
		log.Bool("durable", e.durable != nil),
		log.Bool("parallel", e.dispatcher != nil),
		log.Bool("peek", e.cfg.PeekEnabled),
	)
	return nil
}

// Add enqueues v. In file-based mode it is written to the durable queue;
// otherwise it goes to the in-memory queue, waiting for space when
// BlockingEnqueue is set and failing with ErrQueueFull when not.
//
// Add returns ErrStopped once Stop has been requested.
func (e *Engine[E]) Add(ctx context.Context, v E) error {
	e.addsInFlight.Inc()
	defer e.addsInFlight.Dec()
	if e.lc.IsStopping() {
		return ErrStopped
	}

	if e.cfg.FileBased && e.durable != nil {
		if err := e.durable.Push(v); err != nil {
			e.rejected(err)
			return fmt.Errorf("bulk: durable push: %w", err)
		}
		e.counters.Increment(QueueAdd)
		return nil
	}

	select {
	case e.mem <- v:
		e.counters.Increment(QueueAdd)
		return nil
	default:
	}
	if !e.cfg.BlockingEnqueue {
		e.rejected(ErrQueueFull)
		return ErrQueueFull
	}

	select {
	case e.mem <- v:
		e.counters.Increment(QueueAdd)
		return nil
	case <-ctx.Done():
		e.rejected(ctx.Err())
		return ctx.Err()
	}
}

func (e *Engine[E]) rejected(err error) {
	e.counters.Increment(QueueAddFailure)
	e.logger.Error("failed to insert into queue", log.Err(err))
}

// Stop requests shutdown and waits until the backlog is drained, in-flight
// batches are done and the durable queue is closed. If ctx ends first Stop
// returns ErrShutdownTimeout; draining continues and Stop may be called
// again. Stop after a completed Stop returns the first result.
func (e *Engine[E]) Stop(ctx context.Context) error {
	switch e.lc.State() {
	case lifecycle.StateIdle:
		return ErrNotStarted
	case lifecycle.StateRunning:
		if err := e.lc.TransitionTo(lifecycle.StateStopping, "stop requested"); err != nil &&
			!errors.Is(err, lifecycle.ErrInvalidState) && !errors.Is(err, lifecycle.ErrNotRunning) {
			return err
		}
	}

	if err := e.lc.Wait(ctx); err != nil {
		e.logger.Warn("stop timed out, backlog still draining",
			log.Int("backlog", e.Backlog()),
			log.Int("pool_workers", e.poolWorkers()),
		)
		return err
	}

	e.finishOnce.Do(func() {
		e.finishErr = e.finish()
	})
	return e.finishErr
}

func (e *Engine[E]) finish() error {
	if e.dispatcher != nil {
		e.dispatcher.Release()
	}

	var result *multierror.Error
	if e.durable != nil {
		close(e.gcStop)
		<-e.gcDone
		if err := e.durable.GC(); err != nil {
			result = multierror.Append(result, fmt.Errorf("bulk: final gc: %w", err))
		}
		if err := e.durable.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("bulk: close durable queue: %w", err))
		}
	}
	e.cancel()

	if err := e.lc.TransitionTo(lifecycle.StateStopped, "backlog drained"); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (e *Engine[E]) runGC() {
	defer close(e.gcDone)
	ticker := time.NewTicker(e.cfg.DurableGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.durable.GC(); err != nil {
				e.logger.Warn("durable queue gc failed", log.Err(err))
			}
		case <-e.gcStop:
			return
		}
	}
}

// poolWorkers returns the number of live dispatch workers.
func (e *Engine[E]) poolWorkers() int {
	if e.dispatcher == nil {
		return 0
	}
	return e.dispatcher.Running()
}

// Backlog returns the number of elements waiting in both queues.
func (e *Engine[E]) Backlog() int {
	return e.QueueSize() + e.DurableSize()
}

// QueueSize returns the number of elements in the in-memory queue.
func (e *Engine[E]) QueueSize() int {
	return len(e.mem)
}

// DurableSize returns the number of records in the durable queue, or 0
// without one.
func (e *Engine[E]) DurableSize() int {
	if e.durable == nil {
		return 0
	}
	return e.durable.Size()
}

// Durable returns the durable queue, or nil without one. Elements pushed to
// it directly are delivered like any other.
func (e *Engine[E]) Durable() *durable.Typed[E] {
	return e.durable
}

// Counters returns the engine's event counters.
func (e *Engine[E]) Counters() *counter.Counter[Status] {
	return e.counters
}

// Collector exports the counters to Prometheus under
// bulkq_<subsystem>_events_total and bulkq_<subsystem>_events_window.
func (e *Engine[E]) Collector(subsystem string) *counter.Collector[Status] {
	return counter.NewCollector(e.counters, "bulkq", subsystem, Status.String)
}

// State returns the lifecycle state.
func (e *Engine[E]) State() lifecycle.State {
	return e.lc.State()
}

// Config returns a copy of the configuration.
func (e *Engine[E]) Config() Config {
	return e.cfg
}
