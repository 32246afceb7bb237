package bulk

import (
	"github.com/bft-labs/bulkq/pkg/codec"
	"github.com/bft-labs/bulkq/pkg/durable"
	"github.com/bft-labs/bulkq/pkg/lifecycle"
	"github.com/bft-labs/bulkq/pkg/log"
)

// Option configures optional behavior of an Engine.
type Option func(*options)

type options struct {
	logger      log.Logger
	emitter     lifecycle.EventEmitter
	queue       durable.Queue
	walOptions  durable.WALOptions
	codec       any
	placeholder any
}

// WithLogger sets the logger. Without it nothing is logged.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventEmitter receives lifecycle state changes.
func WithEventEmitter(emitter lifecycle.EventEmitter) Option {
	return func(o *options) {
		o.emitter = emitter
	}
}

// WithDurableQueue uses q as the durable queue instead of opening one from
// Config.DurableQueueDir. The engine closes q on Stop.
func WithDurableQueue(q durable.Queue) Option {
	return func(o *options) {
		o.queue = q
	}
}

// WithWALOptions tunes the WAL opened from Config.DurableQueueDir.
func WithWALOptions(opts durable.WALOptions) Option {
	return func(o *options) {
		o.walOptions = opts
	}
}

// WithCodec sets the codec for durable records. It must match the engine's
// element type.
func WithCodec[E any](c codec.Codec[E]) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithPlaceholder sets the element delivered in place of a durable record
// that cannot be decoded. Without it such records are skipped.
func WithPlaceholder[E any](v E) Option {
	return func(o *options) {
		o.placeholder = v
	}
}
