package durable

import (
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/tidwall/wal"

	"github.com/bft-labs/bulkq/internal/adapters/fs"
)

// WALOptions tunes the underlying write-ahead log.
type WALOptions struct {
	// NoSync skips fsync after each write. Records written since the last GC
	// may be lost on power failure.
	NoSync bool
	// SegmentSize is the size of each log segment in bytes. Zero keeps the
	// log's default (20MB).
	SegmentSize int
	// SegmentCacheSize is the number of segments kept in memory for reads.
	SegmentCacheSize int
}

// WALQueue is a Queue stored in a segmented write-ahead log under
// <dir>/<name>/log. The read position lives beside it in a cursor file,
// saved on every GC and on Close.
//
// Records dequeued after the last saved cursor are handed out again after
// a crash, so delivery across restarts is at-least-once.
type WALQueue struct {
	mu     sync.Mutex
	log    *wal.Log
	cursor *fs.CursorFile
	root   string

	first  uint64 // oldest index still in the log, 0 when empty
	last   uint64 // newest index written, 0 when empty
	head   uint64 // next index to hand out
	closed bool
}

// OpenWAL opens or creates the queue called name under dir.
func OpenWAL(dir, name string, opts WALOptions) (*WALQueue, error) {
	if name == "" {
		return nil, errors.New("durable: empty queue name")
	}
	root := filepath.Join(dir, name)

	l, err := wal.Open(filepath.Join(root, "log"), &wal.Options{
		NoSync:           opts.NoSync,
		SegmentSize:      opts.SegmentSize,
		SegmentCacheSize: opts.SegmentCacheSize,
		LogFormat:        wal.Binary,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "durable: open wal %s", root)
	}

	q := &WALQueue{log: l, cursor: fs.NewCursorFile(root), root: root}
	if err := q.recover(); err != nil {
		_ = l.Close()
		return nil, err
	}
	return q, nil
}

func (q *WALQueue) recover() error {
	var err error
	if q.first, err = q.log.FirstIndex(); err != nil {
		return errors.Wrap(err, "durable: read first index")
	}
	if q.last, err = q.log.LastIndex(); err != nil {
		return errors.Wrap(err, "durable: read last index")
	}
	cur, err := q.cursor.Load()
	if err != nil {
		return errors.Wrapf(err, "durable: load cursor %s", q.cursor.Path())
	}

	q.head = cur.Head
	if q.last == 0 {
		q.head = 1
		return nil
	}
	if q.head < q.first {
		q.head = q.first
	}
	if q.head > q.last+1 {
		q.head = q.last + 1
	}
	return nil
}

// Dir returns the directory holding the log and cursor.
func (q *WALQueue) Dir() string { return q.root }

func (q *WALQueue) Push(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	idx := q.last + 1
	if err := q.log.Write(idx, data); err != nil {
		return errors.Wrapf(err, "durable: write index %d", idx)
	}
	q.advanceLast(idx)
	return nil
}

// PushBatch appends records in a single log write.
func (q *WALQueue) PushBatch(records [][]byte) error {
	if len(records) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	b := new(wal.Batch)
	idx := q.last
	for _, r := range records {
		idx++
		b.Write(idx, r)
	}
	if err := q.log.WriteBatch(b); err != nil {
		return errors.Wrapf(err, "durable: write batch ending at %d", idx)
	}
	q.advanceLast(idx)
	return nil
}

func (q *WALQueue) advanceLast(idx uint64) {
	if q.first == 0 {
		q.first = 1
	}
	q.last = idx
}

func (q *WALQueue) Pop() ([]byte, bool, error) {
	out, err := q.DequeueMulti(1)
	if err != nil || len(out) == 0 {
		return nil, false, err
	}
	return out[0], true, nil
}

func (q *WALQueue) PeekMulti(n int) ([][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readLocked(n)
}

func (q *WALQueue) DequeueMulti(n int) ([][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out, err := q.readLocked(n)
	q.head += uint64(len(out))
	return out, err
}

// readLocked returns up to n records from head. On a read error the records
// read so far are returned with the error.
func (q *WALQueue) readLocked(n int) ([][]byte, error) {
	if q.closed {
		return nil, ErrClosed
	}
	avail := q.sizeLocked()
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		idx := q.head + uint64(i)
		data, err := q.log.Read(idx)
		if err != nil {
			return out, errors.Wrapf(err, "durable: read index %d", idx)
		}
		out = append(out, data)
	}
	return out, nil
}

func (q *WALQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}

func (q *WALQueue) sizeLocked() int {
	if q.last == 0 || q.head > q.last {
		return 0
	}
	return int(q.last - q.head + 1)
}

// GC truncates segments holding only dequeued records, syncs the log and
// saves the cursor. The newest record is always kept so the index sequence
// survives a reopen.
func (q *WALQueue) GC() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	if err := q.log.Sync(); err != nil {
		return errors.Wrap(err, "durable: sync")
	}
	if q.last > 0 {
		front := q.head
		if front > q.last {
			front = q.last
		}
		if front > q.first {
			if err := q.log.TruncateFront(front); err != nil && !errors.Is(err, wal.ErrOutOfRange) {
				return errors.Wrapf(err, "durable: truncate front to %d", front)
			}
			q.first = front
		}
	}
	if err := q.cursor.Save(fs.Cursor{Head: q.head}); err != nil {
		return errors.Wrap(err, "durable: save cursor")
	}
	return nil
}

// Close saves the cursor and closes the log. Closing twice is a no-op.
func (q *WALQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	var result *multierror.Error
	if err := q.cursor.Save(fs.Cursor{Head: q.head}); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "durable: save cursor"))
	}
	if err := q.log.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "durable: close wal"))
	}
	return result.ErrorOrNil()
}
