// Package spool feeds files dropped into a directory into the engine, one
// element per line.
//
// Producers should write a file under a name starting with "." or ending in
// ".tmp" and rename it when complete; such files are ignored. A file is
// removed once every line was accepted. If a line is rejected the file is
// left in place and read again from the start on the next sweep, so lines
// before the rejected one are delivered twice. A file that cannot be read,
// such as one with a line over 4 MiB, is renamed with a ".failed" suffix.
package spool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/bulkq/pkg/log"
)

// DefaultDebounce is how long the feeder waits after the last file event
// before sweeping.
const DefaultDebounce = 100 * time.Millisecond

// FailedSuffix is appended to files that could not be read. They are not
// swept again.
const FailedSuffix = ".failed"

// maxLineSize bounds a single line.
const maxLineSize = 4 << 20

// Adder accepts lines. *bulk.Engine[string] satisfies it.
type Adder interface {
	Add(ctx context.Context, line string) error
}

// Feeder watches a directory and adds the lines of every file in it.
type Feeder struct {
	dir      string
	add      Adder
	logger   log.Logger
	debounce time.Duration

	sweepMu sync.Mutex
	mu      sync.Mutex
	timer   *time.Timer
}

// New creates a Feeder for dir. debounce <= 0 uses DefaultDebounce.
func New(dir string, add Adder, debounce time.Duration, logger log.Logger) *Feeder {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Feeder{
		dir:      dir,
		add:      add,
		logger:   log.OrNoop(logger).With(log.String("component", "spool"), log.String("dir", dir)),
		debounce: debounce,
	}
}

// Run sweeps the directory once and then on every change until ctx is
// done.
func (f *Feeder) Run(ctx context.Context) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("watch %s: %w", f.dir, err)
	}
	f.logger.Info("watching spool directory")

	f.sweepLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			f.stopTimer()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if skip(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			f.schedule(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("watcher error", log.Err(err))
		}
	}
}

func (f *Feeder) schedule(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.debounce, func() {
		f.sweepLogged(ctx)
	})
}

func (f *Feeder) stopTimer() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
}

func (f *Feeder) sweepLogged(ctx context.Context) {
	n, err := f.Sweep(ctx)
	if err != nil {
		f.logger.Warn("spool sweep stopped", log.Int("lines", n), log.Err(err))
		return
	}
	if n > 0 {
		f.logger.Info("spool sweep done", log.Int("lines", n))
	}
}

// Sweep ingests every complete file in name order and returns the number
// of lines added. A file the engine rejects a line from stops the sweep and
// is kept for the next one. A file that cannot be read is renamed with the
// FailedSuffix and the sweep moves on.
func (f *Feeder) Sweep(ctx context.Context) (int, error) {
	f.sweepMu.Lock()
	defer f.sweepMu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("read spool dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	total := 0
	for _, entry := range entries {
		if entry.IsDir() || skip(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
		path := filepath.Join(f.dir, entry.Name())
		n, err := f.ingest(ctx, path)
		total += n
		if err != nil {
			var rejected *addError
			if errors.As(err, &rejected) {
				return total, fmt.Errorf("ingest %s: %w", entry.Name(), err)
			}
			if os.IsNotExist(err) {
				continue
			}
			f.quarantine(path, n, err)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return total, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}
	return total, nil
}

// quarantine moves an unreadable file out of the sweep set.
func (f *Feeder) quarantine(path string, lines int, cause error) {
	failed := path + FailedSuffix
	logger := f.logger.With(log.String("file", filepath.Base(path)))
	if err := os.Rename(path, failed); err != nil {
		logger.Error("failed to set aside unreadable file", log.Err(cause), log.String("rename_error", err.Error()))
		return
	}
	logger.Warn("unreadable file set aside",
		log.String("moved_to", filepath.Base(failed)),
		log.Int("lines_added", lines),
		log.Err(cause),
	)
}

func (f *Feeder) ingest(ctx context.Context, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return ReadLines(ctx, file, f.add)
}

// addError is a line rejected by the Adder, as opposed to a read failure.
type addError struct {
	err error
}

func (e *addError) Error() string { return e.err.Error() }
func (e *addError) Unwrap() error { return e.err }

// ReadLines adds every non-empty line of r until EOF or the first rejected
// line, and returns the number of lines added.
func ReadLines(ctx context.Context, r io.Reader, add Adder) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	n := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if err := add.Add(ctx, line); err != nil {
			return n, &addError{err: err}
		}
		n++
	}
	return n, scanner.Err()
}

func skip(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, FailedSuffix)
}
