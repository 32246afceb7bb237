package bulk

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Priority selects which source fills a batch first when both the in-memory
// queue and a durable queue are configured. The other source tops up the
// remaining budget.
type Priority int

const (
	// PriorityAuto takes memory first in file-based mode and the durable
	// queue first otherwise.
	PriorityAuto Priority = iota
	PriorityMemoryFirst
	PriorityDurableFirst
)

func (p Priority) String() string {
	switch p {
	case PriorityAuto:
		return "auto"
	case PriorityMemoryFirst:
		return "memory"
	case PriorityDurableFirst:
		return "durable"
	default:
		return "unknown"
	}
}

// ParsePriority parses the output of Priority.String.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return PriorityAuto, nil
	case "memory", "memory-first":
		return PriorityMemoryFirst, nil
	case "durable", "durable-first":
		return PriorityDurableFirst, nil
	default:
		return PriorityAuto, fmt.Errorf("%w: unknown priority %q", ErrInvalidConfig, s)
	}
}

// DefaultDurableQueueName is used when DurableQueueDir is set without a name.
const DefaultDurableQueueName = "bulk-queue"

// Config is the engine configuration. It is copied by New and cannot be
// changed afterwards.
type Config struct {
	// PollInterval is how long the loop sleeps when the backlog is below
	// MinBatchSizeForThrottle.
	PollInterval time.Duration
	// InMemoryCapacity bounds the in-memory queue.
	InMemoryCapacity int

	// DurableQueueDir enables a WAL-backed durable queue under
	// <DurableQueueDir>/<DurableQueueName>. Empty disables it unless a queue
	// is supplied with WithDurableQueue.
	DurableQueueDir   string
	DurableQueueName  string
	DurableGCInterval time.Duration

	BatchSize               int
	MinBatchSizeForThrottle int

	ParallelDispatch      bool
	ParallelWorkerCount   int
	ParallelQueueCapacity int

	// RetryEnabled allows up to 1+RetryCeiling attempts per batch.
	RetryEnabled bool
	RetryCeiling int
	// RetryBackoff is the initial wait between attempts, growing
	// exponentially. Zero retries immediately.
	RetryBackoff time.Duration

	// FileBased routes Add to the durable queue when one is configured.
	FileBased bool
	// PeekEnabled removes durable records only after the batch succeeded.
	PeekEnabled bool
	// BlockingEnqueue makes Add wait for space instead of failing with
	// ErrQueueFull.
	BlockingEnqueue bool

	Priority Priority
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		PollInterval:            time.Second,
		InMemoryCapacity:        10000,
		DurableQueueName:        DefaultDurableQueueName,
		DurableGCInterval:       5 * time.Minute,
		BatchSize:               1000,
		MinBatchSizeForThrottle: 100,
		ParallelWorkerCount:     1,
		ParallelQueueCapacity:   1,
		RetryEnabled:            true,
		RetryCeiling:            math.MaxInt32 - 1,
		BlockingEnqueue:         true,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.InMemoryCapacity <= 0 {
		return fmt.Errorf("%w: in-memory capacity must be positive", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: poll interval must not be negative", ErrInvalidConfig)
	}
	if c.MinBatchSizeForThrottle < 0 {
		return fmt.Errorf("%w: min batch size must not be negative", ErrInvalidConfig)
	}
	if c.RetryCeiling < 0 {
		return fmt.Errorf("%w: retry ceiling must not be negative", ErrInvalidConfig)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("%w: retry backoff must not be negative", ErrInvalidConfig)
	}
	if c.ParallelDispatch {
		if c.ParallelWorkerCount <= 0 {
			return fmt.Errorf("%w: parallel worker count must be positive", ErrInvalidConfig)
		}
		if c.ParallelQueueCapacity < 0 {
			return fmt.Errorf("%w: parallel queue capacity must not be negative", ErrInvalidConfig)
		}
	}
	if c.DurableQueueDir != "" && c.DurableQueueName == "" {
		c.DurableQueueName = DefaultDurableQueueName
	}
	if c.DurableGCInterval <= 0 {
		c.DurableGCInterval = DefaultConfig().DurableGCInterval
	}
	switch c.Priority {
	case PriorityAuto, PriorityMemoryFirst, PriorityDurableFirst:
	default:
		return fmt.Errorf("%w: unknown priority %d", ErrInvalidConfig, c.Priority)
	}
	return nil
}

// memoryFirst reports whether batches are filled from memory first.
func (c *Config) memoryFirst() bool {
	switch c.Priority {
	case PriorityMemoryFirst:
		return true
	case PriorityDurableFirst:
		return false
	default:
		return c.FileBased
	}
}

// attempts returns the number of invocations allowed per batch.
func (c *Config) attempts() int {
	if !c.RetryEnabled {
		return 1
	}
	return c.RetryCeiling + 1
}
