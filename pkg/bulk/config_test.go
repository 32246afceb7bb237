package bulk

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero capacity", func(c *Config) { c.InMemoryCapacity = 0 }, true},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, true},
		{"negative poll", func(c *Config) { c.PollInterval = -time.Second }, true},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, false},
		{"negative min batch", func(c *Config) { c.MinBatchSizeForThrottle = -1 }, true},
		{"negative ceiling", func(c *Config) { c.RetryCeiling = -1 }, true},
		{"negative backoff", func(c *Config) { c.RetryBackoff = -time.Millisecond }, true},
		{"parallel without workers", func(c *Config) {
			c.ParallelDispatch = true
			c.ParallelWorkerCount = 0
		}, true},
		{"parallel zero queue", func(c *Config) {
			c.ParallelDispatch = true
			c.ParallelQueueCapacity = 0
		}, false},
		{"bad priority", func(c *Config) { c.Priority = Priority(7) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Validate_Derivations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DurableQueueDir = "/tmp/q"
	cfg.DurableQueueName = ""
	cfg.DurableGCInterval = 0
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultDurableQueueName, cfg.DurableQueueName)
	assert.Equal(t, 5*time.Minute, cfg.DurableGCInterval)
}

func TestConfig_Attempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryCeiling = 3
	assert.Equal(t, 4, cfg.attempts())
	cfg.RetryEnabled = false
	assert.Equal(t, 1, cfg.attempts())
}

func TestConfig_MemoryFirst(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.memoryFirst())
	cfg.FileBased = true
	assert.True(t, cfg.memoryFirst())
	cfg.Priority = PriorityDurableFirst
	assert.False(t, cfg.memoryFirst())
	cfg.FileBased = false
	cfg.Priority = PriorityMemoryFirst
	assert.True(t, cfg.memoryFirst())
}

func TestParsePriority(t *testing.T) {
	for _, p := range []Priority{PriorityAuto, PriorityMemoryFirst, PriorityDurableFirst} {
		got, err := ParsePriority(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := ParsePriority(" Durable-First ")
	require.NoError(t, err)
	assert.Equal(t, PriorityDurableFirst, got)

	_, err = ParsePriority("newest")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInternal(t *testing.T) {
	assert.Nil(t, Internal(nil))

	cause := errors.New("nil field")
	err := fmt.Errorf("op: %w", Internal(cause))
	assert.True(t, IsInternal(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsInternal(cause))
}

func TestStatus_String(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range Statuses {
		name := s.String()
		assert.NotEqual(t, "unknown", name)
		assert.False(t, seen[name], "duplicate %s", name)
		seen[name] = true
	}
	assert.Equal(t, "unknown", Status(99).String())
}
