package durable

import "sync"

// MemoryQueue is a Queue kept in process memory.
type MemoryQueue struct {
	mu      sync.Mutex
	records [][]byte
	head    int
	closed  bool
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.records = append(q.records, append([]byte(nil), data...))
	return nil
}

func (q *MemoryQueue) Pop() ([]byte, bool, error) {
	out, err := q.DequeueMulti(1)
	if err != nil || len(out) == 0 {
		return nil, false, err
	}
	return out[0], true, nil
}

func (q *MemoryQueue) PeekMulti(n int) ([][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readLocked(n)
}

func (q *MemoryQueue) DequeueMulti(n int) ([][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out, err := q.readLocked(n)
	q.head += len(out)
	return out, err
}

func (q *MemoryQueue) readLocked(n int) ([][]byte, error) {
	if q.closed {
		return nil, ErrClosed
	}
	avail := len(q.records) - q.head
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([][]byte, n)
	copy(out, q.records[q.head:q.head+n])
	return out, nil
}

func (q *MemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records) - q.head
}

// GC drops the records before the head.
func (q *MemoryQueue) GC() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == 0 {
		return nil
	}
	q.records = append([][]byte(nil), q.records[q.head:]...)
	q.head = 0
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
