package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Endpoint        string `toml:"endpoint"`
	AuthKey         string `toml:"auth_key"`
	Format          string `toml:"format"`
	HTTPTimeout     string `toml:"http_timeout"`
	SpoolDir        string `toml:"spool_dir"`
	SpoolDebounce   string `toml:"spool_debounce"`
	MetricsAddr     string `toml:"metrics_addr"`
	LogFile         string `toml:"log_file"`
	LogLevel        string `toml:"log_level"`
	ShutdownTimeout string `toml:"shutdown_timeout"`

	Engine EngineFileConfig `toml:"engine"`
}

// EngineFileConfig is the [engine] table.
type EngineFileConfig struct {
	PollInterval string `toml:"poll_interval"`
	Capacity     int    `toml:"capacity"`
	BatchSize    int    `toml:"batch_size"`
	MinBatchSize *int   `toml:"min_batch_size"`
	DurableDir   string `toml:"durable_dir"`
	DurableName  string `toml:"durable_name"`
	GCInterval   string `toml:"gc_interval"`
	Parallel     *bool  `toml:"parallel"`
	Workers      int    `toml:"workers"`
	WorkerQueue  *int   `toml:"worker_queue"`
	Retry        *bool  `toml:"retry"`
	RetryCeiling *int   `toml:"retry_ceiling"`
	RetryBackoff string `toml:"retry_backoff"`
	FileBased    *bool  `toml:"file_based"`
	Peek         *bool  `toml:"peek"`
	Blocking     *bool  `toml:"blocking"`
	Priority     string `toml:"priority"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.bulkq/config.toml, or "" without a home
// directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".bulkq", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("endpoint", fc.Endpoint, &cfg.Endpoint)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("format", fc.Format, &cfg.Format)
	s.setString("spool-dir", fc.SpoolDir, &cfg.SpoolDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("spool-debounce", fc.SpoolDebounce, &cfg.SpoolDebounce); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	e := fc.Engine
	if err := s.setDuration("poll", e.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("gc-interval", e.GCInterval, &cfg.GCInterval); err != nil {
		return err
	}
	if err := s.setDuration("retry-backoff", e.RetryBackoff, &cfg.RetryBackoff); err != nil {
		return err
	}

	s.setInt("capacity", e.Capacity, &cfg.Capacity)
	s.setInt("batch-size", e.BatchSize, &cfg.BatchSize)
	s.setIntPtr("min-batch-size", e.MinBatchSize, &cfg.MinBatchSize)
	s.setInt("workers", e.Workers, &cfg.Workers)
	s.setIntPtr("worker-queue", e.WorkerQueue, &cfg.WorkerQueue)
	s.setIntPtr("retry-ceiling", e.RetryCeiling, &cfg.RetryCeiling)

	s.setString("durable-dir", e.DurableDir, &cfg.DurableDir)
	s.setString("durable-name", e.DurableName, &cfg.DurableName)
	s.setString("priority", e.Priority, &cfg.Priority)

	s.setBool("parallel", e.Parallel, &cfg.Parallel)
	s.setBool("retry", e.Retry, &cfg.Retry)
	s.setBool("file-based", e.FileBased, &cfg.FileBased)
	s.setBool("peek", e.Peek, &cfg.Peek)
	s.setBool("blocking", e.Blocking, &cfg.Blocking)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
