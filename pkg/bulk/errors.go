package bulk

import (
	"errors"

	"github.com/bft-labs/bulkq/pkg/lifecycle"
)

var (
	// ErrQueueFull is returned by Add in non-blocking mode when the in-memory
	// queue has no free slot. The element is dropped.
	ErrQueueFull = errors.New("bulk: queue full")
	// ErrStopped is returned by Add once Stop has been requested.
	ErrStopped = errors.New("bulk: engine stopped")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("bulk: invalid config")
	// ErrInternal marks a non-retryable fault; see Internal.
	ErrInternal = errors.New("bulk: internal fault")

	ErrAlreadyStarted  = lifecycle.ErrAlreadyStarted
	ErrNotStarted      = lifecycle.ErrNotRunning
	ErrShutdownTimeout = lifecycle.ErrShutdownTimeout
)

type internalError struct {
	err error
}

func (e *internalError) Error() string        { return "bulk: internal fault: " + e.err.Error() }
func (e *internalError) Unwrap() error        { return e.err }
func (e *internalError) Is(target error) bool { return target == ErrInternal }

// Internal marks err as an internal fault. An operation returning it has its
// batch counted as InternalError and consumed without retry, so a batch that
// can never succeed does not block the queue.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	return &internalError{err: err}
}

// IsInternal reports whether err is an internal fault.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}
