package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/bft-labs/bulkq/internal/adapters/http"
	"github.com/bft-labs/bulkq/internal/cliconfig"
	"github.com/bft-labs/bulkq/internal/spool"
	"github.com/bft-labs/bulkq/pkg/bulk"
	"github.com/bft-labs/bulkq/pkg/log"
)

const longHelp = `Batch newline-delimited records and post them to an HTTP endpoint.

Records are read from stdin and, with --spool-dir, from files dropped into a
directory. They are queued in memory (and optionally in a write-ahead log on
disk) and posted in batches as a JSON array or as NDJSON. SIGINT/SIGTERM
drains the backlog before exiting.`

var exampleUsage = strings.TrimSpace(`
  tail -F app.log | bulkq --endpoint https://ingest.example.com/v1/logs
  bulkq --config $HOME/.bulkq/config.toml --spool-dir /var/spool/bulkq --no-stdin
  bulkq --endpoint http://localhost:8080 --durable-dir /var/lib/bulkq --file-based --peek
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	root := newRootCommand(os.Stdin)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bulkq: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(stdin io.Reader) *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string
	var noStdin bool

	root := &cobra.Command{
		Use:           "bulkq",
		Short:         "Batch records and post them to an HTTP endpoint",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Env overrides the file; explicit flags override both.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			zl := cliconfig.Logger(cfg)
			logCfg := cfg
			if logCfg.AuthKey != "" {
				logCfg.AuthKey = "*****"
			}
			zl.Info().Interface("config", logCfg).Msg("configuration")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var in io.Reader
			if !noStdin {
				in = stdin
			}
			return run(ctx, cfg, in, log.NewZerologAdapterWithLogger(zl))
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.bulkq/config.toml)")
	f.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "URL batches are posted to")
	f.StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "bearer token sent with every request")
	f.StringVar(&cfg.Format, "format", cfg.Format, "request body format: json or ndjson")
	f.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout per batch")
	f.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "directory watched for files of records")
	f.DurationVar(&cfg.SpoolDebounce, "spool-debounce", cfg.SpoolDebounce, "delay after the last spool event before reading")
	f.BoolVar(&noStdin, "no-stdin", false, "do not read records from stdin")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address serving Prometheus metrics on /metrics (disabled when empty)")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write logs to a rotating file instead of stderr")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "how long to wait for the backlog to drain on exit")

	f.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "sleep between cycles when the backlog is small")
	f.IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "in-memory queue capacity")
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "maximum records per batch")
	f.IntVar(&cfg.MinBatchSize, "min-batch-size", cfg.MinBatchSize, "backlog below which the loop sleeps")
	f.StringVar(&cfg.DurableDir, "durable-dir", cfg.DurableDir, "directory of the on-disk queue (disabled when empty)")
	f.StringVar(&cfg.DurableName, "durable-name", cfg.DurableName, "name of the on-disk queue")
	f.DurationVar(&cfg.GCInterval, "gc-interval", cfg.GCInterval, "on-disk queue compaction interval")
	f.BoolVar(&cfg.Parallel, "parallel", cfg.Parallel, "post batches from a worker pool")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "worker pool size")
	f.IntVar(&cfg.WorkerQueue, "worker-queue", cfg.WorkerQueue, "batches queued for the worker pool before the loop posts itself")
	f.BoolVar(&cfg.Retry, "retry", cfg.Retry, "retry failed batches")
	f.IntVar(&cfg.RetryCeiling, "retry-ceiling", cfg.RetryCeiling, "maximum retries per batch")
	f.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "initial wait between retries (exponential)")
	f.BoolVar(&cfg.FileBased, "file-based", cfg.FileBased, "queue every record on disk")
	f.BoolVar(&cfg.Peek, "peek", cfg.Peek, "remove on-disk records only after their batch was posted")
	f.BoolVar(&cfg.Blocking, "blocking", cfg.Blocking, "wait for space when the in-memory queue is full")
	f.StringVar(&cfg.Priority, "priority", cfg.Priority, "source that fills batches first: auto, memory or durable")

	return root
}

// run starts the engine and its feeders and blocks until ctx is done, or
// until stdin is exhausted when it is the only source.
func run(ctx context.Context, cfg cliconfig.Config, stdin io.Reader, logger log.Logger) error {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	format, err := httpadapter.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	poster := httpadapter.NewPoster(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.Endpoint, cfg.AuthKey, format, logger)
	engine, err := bulk.New[string](engineCfg, poster, bulk.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	if err := engine.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.SpoolDir != "" {
		feeder := spool.New(cfg.SpoolDir, engine, cfg.SpoolDebounce, logger)
		g.Go(func() error { return feeder.Run(gctx) })
	}

	if cfg.MetricsAddr != "" {
		srv := metricsServer(cfg.MetricsAddr, engine.Collector("engine"))
		g.Go(func() error {
			logger.Info("serving metrics", log.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if stdin != nil {
		// Scanning cannot be interrupted, so the reader is not part of the
		// group; it stops at EOF or at the first rejected line.
		go func() {
			n, err := spool.ReadLines(gctx, stdin, engine)
			if err != nil && !errors.Is(err, bulk.ErrStopped) && gctx.Err() == nil {
				logger.Error("stdin reader stopped", log.Int("lines", n), log.Err(err))
			} else {
				logger.Info("stdin exhausted", log.Int("lines", n))
			}
			if cfg.SpoolDir == "" {
				cancel()
			}
		}()
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()

	logger.Info("shutting down, draining backlog", log.Int("backlog", engine.Backlog()))
	stopCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer done()
	if err := engine.Stop(stopCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("stop engine: %w", err))
	}
	logger.Info("stopped", log.Any("counters", engine.Counters().Snapshot()))
	return runErr
}

func metricsServer(addr string, engineCollector prometheus.Collector) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		engineCollector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}
