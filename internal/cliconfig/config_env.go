package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (BULKQ_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("endpoint", os.Getenv("BULKQ_ENDPOINT"), &cfg.Endpoint)
	s.setString("auth-key", os.Getenv("BULKQ_AUTH_KEY"), &cfg.AuthKey)
	s.setString("format", os.Getenv("BULKQ_FORMAT"), &cfg.Format)
	s.setString("spool-dir", os.Getenv("BULKQ_SPOOL_DIR"), &cfg.SpoolDir)
	s.setString("metrics-addr", os.Getenv("BULKQ_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-file", os.Getenv("BULKQ_LOG_FILE"), &cfg.LogFile)
	s.setString("log-level", os.Getenv("BULKQ_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("durable-dir", os.Getenv("BULKQ_DURABLE_DIR"), &cfg.DurableDir)
	s.setString("durable-name", os.Getenv("BULKQ_DURABLE_NAME"), &cfg.DurableName)
	s.setString("priority", os.Getenv("BULKQ_PRIORITY"), &cfg.Priority)

	if err := s.setDuration("timeout", os.Getenv("BULKQ_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("spool-debounce", os.Getenv("BULKQ_SPOOL_DEBOUNCE"), &cfg.SpoolDebounce); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv("BULKQ_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := s.setDuration("poll", os.Getenv("BULKQ_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("gc-interval", os.Getenv("BULKQ_GC_INTERVAL"), &cfg.GCInterval); err != nil {
		return err
	}
	if err := s.setDuration("retry-backoff", os.Getenv("BULKQ_RETRY_BACKOFF"), &cfg.RetryBackoff); err != nil {
		return err
	}

	ints := []struct {
		flag, env string
		dst       *int
	}{
		{"capacity", "BULKQ_CAPACITY", &cfg.Capacity},
		{"batch-size", "BULKQ_BATCH_SIZE", &cfg.BatchSize},
		{"workers", "BULKQ_WORKERS", &cfg.Workers},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, os.Getenv(i.env), i.dst); err != nil {
			return err
		}
	}

	// Zero is meaningful for these: no throttling, no pool queue, one attempt.
	counts := []struct {
		flag, env string
		dst       *int
	}{
		{"min-batch-size", "BULKQ_MIN_BATCH_SIZE", &cfg.MinBatchSize},
		{"worker-queue", "BULKQ_WORKER_QUEUE", &cfg.WorkerQueue},
		{"retry-ceiling", "BULKQ_RETRY_CEILING", &cfg.RetryCeiling},
	}
	for _, c := range counts {
		if err := s.setNonNegIntFromString(c.flag, os.Getenv(c.env), c.dst); err != nil {
			return err
		}
	}

	s.setBoolFromString("parallel", os.Getenv("BULKQ_PARALLEL"), &cfg.Parallel)
	s.setBoolFromString("retry", os.Getenv("BULKQ_RETRY"), &cfg.Retry)
	s.setBoolFromString("file-based", os.Getenv("BULKQ_FILE_BASED"), &cfg.FileBased)
	s.setBoolFromString("peek", os.Getenv("BULKQ_PEEK"), &cfg.Peek)
	s.setBoolFromString("blocking", os.Getenv("BULKQ_BLOCKING"), &cfg.Blocking)

	return nil
}
