package durable

import "errors"

var (
	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("durable: queue closed")
	// ErrNilElement is returned when pushing a nil element.
	ErrNilElement = errors.New("durable: nil element")
	// ErrNilDestination is returned by DrainTo/PeekTo with a nil destination.
	ErrNilDestination = errors.New("durable: nil destination")
	// ErrSelfDestination is returned by DrainTo/PeekTo when the destination
	// writes back into the queue being read.
	ErrSelfDestination = errors.New("durable: destination is the source queue")
)

// Queue is an ordered, persistent FIFO of byte records.
//
// PeekMulti reads from the head without removing anything, so calling it
// twice returns the same records. DequeueMulti reads and removes. GC
// reclaims storage of removed records and may be called concurrently with
// every other method.
type Queue interface {
	Push(data []byte) error
	// Pop removes and returns the head record; ok is false when empty.
	Pop() (data []byte, ok bool, err error)
	PeekMulti(n int) ([][]byte, error)
	DequeueMulti(n int) ([][]byte, error)
	Size() int
	GC() error
	Close() error
}
