package cliconfig

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	httpadapter "github.com/bft-labs/bulkq/internal/adapters/http"
	"github.com/bft-labs/bulkq/pkg/bulk"
)

// Config holds CLI configuration for bulkq.
type Config struct {
	Endpoint    string
	AuthKey     string
	Format      string
	HTTPTimeout time.Duration

	SpoolDir      string
	SpoolDebounce time.Duration
	MetricsAddr   string

	LogFile  string
	LogLevel string

	PollInterval    time.Duration
	Capacity        int
	BatchSize       int
	MinBatchSize    int
	DurableDir      string
	DurableName     string
	GCInterval      time.Duration
	Parallel        bool
	Workers         int
	WorkerQueue     int
	Retry           bool
	RetryCeiling    int
	RetryBackoff    time.Duration
	FileBased       bool
	Peek            bool
	Blocking        bool
	Priority        string
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	e := bulk.DefaultConfig()
	return Config{
		Format:          string(httpadapter.FormatJSONArray),
		HTTPTimeout:     30 * time.Second,
		LogLevel:        "info",
		PollInterval:    e.PollInterval,
		Capacity:        e.InMemoryCapacity,
		BatchSize:       e.BatchSize,
		MinBatchSize:    e.MinBatchSizeForThrottle,
		DurableName:     e.DurableQueueName,
		GCInterval:      e.DurableGCInterval,
		Workers:         e.ParallelWorkerCount,
		WorkerQueue:     e.ParallelQueueCapacity,
		Retry:           e.RetryEnabled,
		RetryCeiling:    e.RetryCeiling,
		Blocking:        e.BlockingEnqueue,
		Priority:        e.Priority.String(),
		ShutdownTimeout: time.Minute,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an http(s) URL: %q", c.Endpoint)
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")

	if _, err := httpadapter.ParseFormat(c.Format); err != nil {
		return err
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.FileBased && c.DurableDir == "" {
		return fmt.Errorf("file-based mode needs durable-dir")
	}
	if c.Peek && c.DurableDir == "" {
		return fmt.Errorf("peek mode needs durable-dir")
	}

	e, err := c.EngineConfig()
	if err != nil {
		return err
	}
	return e.Validate()
}

// EngineConfig converts c into an engine configuration.
func (c *Config) EngineConfig() (bulk.Config, error) {
	priority, err := bulk.ParsePriority(c.Priority)
	if err != nil {
		return bulk.Config{}, err
	}
	return bulk.Config{
		PollInterval:            c.PollInterval,
		InMemoryCapacity:        c.Capacity,
		DurableQueueDir:         c.DurableDir,
		DurableQueueName:        c.DurableName,
		DurableGCInterval:       c.GCInterval,
		BatchSize:               c.BatchSize,
		MinBatchSizeForThrottle: c.MinBatchSize,
		ParallelDispatch:        c.Parallel,
		ParallelWorkerCount:     c.Workers,
		ParallelQueueCapacity:   c.WorkerQueue,
		RetryEnabled:            c.Retry,
		RetryCeiling:            c.RetryCeiling,
		RetryBackoff:            c.RetryBackoff,
		FileBased:               c.FileBased,
		PeekEnabled:             c.Peek,
		BlockingEnqueue:         c.Blocking,
		Priority:                priority,
	}, nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if positive.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setIntPtr sets an int value from a pointer if not nil and flag not changed.
// Zero is a valid value.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setNonNegIntFromString parses a string to int and sets the destination.
// Zero is accepted; a negative value is an error.
func (s *configSetter) setNonNegIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 {
		return fmt.Errorf("%s must not be negative: %d", flag, i)
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
