package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/bft-labs/bulkq/pkg/log"
)

// Lifecycle errors.
var (
	ErrAlreadyStarted  = errors.New("lifecycle: already started")
	ErrNotRunning      = errors.New("lifecycle: not running")
	ErrInvalidState    = errors.New("lifecycle: invalid transition")
	ErrShutdownTimeout = errors.New("lifecycle: shutdown timeout")
)

// Manager drives the Idle -> Running -> Stopping -> Stopped state machine
// and tracks the goroutines that must finish before Stopped.
type Manager struct {
	mu      sync.RWMutex
	state   State
	stopCh  chan struct{}
	wg      sync.WaitGroup
	logger  log.Logger
	emitter EventEmitter
}

// NewManager creates a manager in StateIdle. emitter may be nil.
func NewManager(logger log.Logger, emitter EventEmitter) *Manager {
	return &Manager{
		state:   StateIdle,
		stopCh:  make(chan struct{}),
		logger:  log.OrNoop(logger),
		emitter: emitter,
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// TransitionTo moves to newState if the transition is allowed.
// Entering StateStopping closes the channel returned by Stopping.
func (m *Manager) TransitionTo(newState State, reason string) error {
	m.mu.Lock()
	oldState := m.state

	if err := validate(oldState, newState); err != nil {
		m.mu.Unlock()
		return err
	}

	m.state = newState
	if newState == StateStopping {
		close(m.stopCh)
	}
	m.mu.Unlock()

	if m.emitter != nil {
		m.emitter.OnStateChange(oldState, newState, reason)
	}

	m.logger.Info("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

func validate(from, to State) error {
	switch from {
	case StateIdle:
		if to == StateRunning {
			return nil
		}
		return ErrNotRunning
	case StateRunning:
		if to == StateStopping {
			return nil
		}
		return ErrAlreadyStarted
	case StateStopping:
		if to == StateStopped {
			return nil
		}
		return ErrInvalidState
	default:
		return ErrNotRunning
	}
}

// Stopping returns a channel closed once Stop has been requested.
func (m *Manager) Stopping() <-chan struct{} {
	return m.stopCh
}

// IsStopping reports whether the state is Stopping or Stopped.
func (m *Manager) IsStopping() bool {
	select {
	case <-m.stopCh:
		return true
	default:
		return false
	}
}

// AddWorker registers a goroutine that Wait must wait for.
func (m *Manager) AddWorker() {
	m.wg.Add(1)
}

// WorkerDone marks a registered goroutine as finished.
func (m *Manager) WorkerDone() {
	m.wg.Done()
}

// Wait blocks until every registered worker finished or ctx is done, in
// which case ErrShutdownTimeout is returned and the workers keep running.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.logger.Warn("shutdown deadline reached, workers still draining", log.Err(ctx.Err()))
		return ErrShutdownTimeout
	}
}
