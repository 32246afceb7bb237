package durable

import (
	"reflect"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bft-labs/bulkq/pkg/codec"
	"github.com/bft-labs/bulkq/pkg/log"
)

// Appender receives elements read from a Typed queue.
type Appender[E any] interface {
	Append(items ...E)
}

// Buffer is a slice that implements Appender.
type Buffer[E any] []E

func (b *Buffer[E]) Append(items ...E) { *b = append(*b, items...) }

// Reset empties the buffer and keeps its capacity.
func (b *Buffer[E]) Reset() { *b = (*b)[:0] }

type codecBox[E any] struct {
	c codec.Codec[E]
}

// Typed stores elements of type E in a Queue.
//
// The codec is fixed the first time it is needed: an explicit WithCodec
// wins, otherwise codec.Default is used. Records that fail to decode are
// replaced by the placeholder when one is set and skipped otherwise; in
// both cases they still count toward the number of records read.
type Typed[E any] struct {
	q      Queue
	codec  atomic.Pointer[codecBox[E]]
	logger log.Logger

	placeholder *E
	onCorrupt   func(err error)
	corrupt     atomic.Int64
}

// TypedOption configures a Typed queue.
type TypedOption[E any] func(*Typed[E])

// WithCodec sets the element codec.
func WithCodec[E any](c codec.Codec[E]) TypedOption[E] {
	return func(t *Typed[E]) {
		if c != nil {
			t.codec.Store(&codecBox[E]{c: c})
		}
	}
}

// WithPlaceholder sets the element returned in place of a corrupt record.
func WithPlaceholder[E any](v E) TypedOption[E] {
	return func(t *Typed[E]) { t.placeholder = &v }
}

// WithLogger sets the logger.
func WithLogger[E any](l log.Logger) TypedOption[E] {
	return func(t *Typed[E]) { t.logger = log.OrNoop(l) }
}

// WithCorruptHandler is called for every record that fails to decode.
func WithCorruptHandler[E any](fn func(err error)) TypedOption[E] {
	return func(t *Typed[E]) { t.onCorrupt = fn }
}

// NewTyped wraps q.
func NewTyped[E any](q Queue, opts ...TypedOption[E]) *Typed[E] {
	t := &Typed[E]{q: q, logger: log.NewNoopLogger()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Typed[E]) resolveCodec() codec.Codec[E] {
	if b := t.codec.Load(); b != nil {
		return b.c
	}
	t.codec.CompareAndSwap(nil, &codecBox[E]{c: codec.Default[E]()})
	return t.codec.Load().c
}

// Push encodes v and appends it.
func (t *Typed[E]) Push(v E) error {
	if isNil(v) {
		return ErrNilElement
	}
	data, err := t.resolveCodec().Encode(v)
	if err != nil {
		return errors.Wrap(err, "durable: encode element")
	}
	return t.q.Push(data)
}

// PushAll appends every element, in one log write when the queue supports
// it. Nothing is written if any element is nil or fails to encode.
func (t *Typed[E]) PushAll(items ...E) error {
	c := t.resolveCodec()
	records := make([][]byte, 0, len(items))
	for _, v := range items {
		if isNil(v) {
			return ErrNilElement
		}
		data, err := c.Encode(v)
		if err != nil {
			return errors.Wrap(err, "durable: encode element")
		}
		records = append(records, data)
	}
	if bp, ok := t.q.(interface{ PushBatch([][]byte) error }); ok {
		return bp.PushBatch(records)
	}
	for _, r := range records {
		if err := t.q.Push(r); err != nil {
			return err
		}
	}
	return nil
}

// Append implements Appender. Failures are logged.
func (t *Typed[E]) Append(items ...E) {
	if err := t.PushAll(items...); err != nil {
		t.logger.Error("durable append failed", log.Int("count", len(items)), log.Err(err))
	}
}

// Pop removes the head element. ok is false when the queue is empty.
func (t *Typed[E]) Pop() (v E, ok bool, err error) {
	data, ok, err := t.q.Pop()
	if err != nil || !ok {
		return v, false, err
	}
	v, good := t.decode(data)
	if !good && t.placeholder == nil {
		var zero E
		return zero, true, nil
	}
	return v, true, nil
}

// DrainTo removes up to n elements and appends them to dst. It returns
// the number of records read, which includes corrupt records.
func (t *Typed[E]) DrainTo(dst Appender[E], n int) (int, error) {
	if err := t.checkDst(dst); err != nil {
		return 0, err
	}
	records, err := t.q.DequeueMulti(n)
	t.appendDecoded(dst, records)
	return len(records), err
}

// PeekTo appends up to n elements to dst without removing them. Remove
// acknowledges them afterwards.
func (t *Typed[E]) PeekTo(dst Appender[E], n int) (int, error) {
	if err := t.checkDst(dst); err != nil {
		return 0, err
	}
	records, err := t.q.PeekMulti(n)
	t.appendDecoded(dst, records)
	return len(records), err
}

// Remove discards n records from the head.
func (t *Typed[E]) Remove(n int) error {
	if n <= 0 {
		return nil
	}
	_, err := t.q.DequeueMulti(n)
	return err
}

func (t *Typed[E]) Size() int    { return t.q.Size() }
func (t *Typed[E]) GC() error    { return t.q.GC() }
func (t *Typed[E]) Close() error { return t.q.Close() }

// Corrupt returns the number of records that failed to decode.
func (t *Typed[E]) Corrupt() int64 { return t.corrupt.Load() }

func (t *Typed[E]) checkDst(dst Appender[E]) error {
	if dst == nil || isNil(dst) {
		return ErrNilDestination
	}
	if other, ok := dst.(*Typed[E]); ok && (other == t || other.q == t.q) {
		return ErrSelfDestination
	}
	return nil
}

func (t *Typed[E]) appendDecoded(dst Appender[E], records [][]byte) {
	if len(records) == 0 {
		return
	}
	out := make([]E, 0, len(records))
	for _, r := range records {
		v, ok := t.decode(r)
		if ok || t.placeholder != nil {
			out = append(out, v)
		}
	}
	if len(out) > 0 {
		dst.Append(out...)
	}
}

// decode returns the placeholder (or zero) and false for a corrupt record.
func (t *Typed[E]) decode(data []byte) (E, bool) {
	v, err := t.resolveCodec().Decode(data)
	if err == nil {
		return v, true
	}
	t.corrupt.Inc()
	t.logger.Warn("corrupt durable record", log.Int("bytes", len(data)), log.Err(err))
	if t.onCorrupt != nil {
		t.onCorrupt(err)
	}
	var zero E
	if t.placeholder != nil {
		return *t.placeholder, false
	}
	return zero, false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
