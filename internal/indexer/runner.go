package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/sessionsearch-mcp/internal/indexstate"
	"github.com/dshills/sessionsearch-mcp/internal/parser"
	"github.com/dshills/sessionsearch-mcp/internal/storage"
	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

const (
	// DefaultDebounce is the quiet period after a file event before a pass starts.
	// Transcripts are appended to in bursts while a session is live.
	DefaultDebounce = 1500 * time.Millisecond

	// progressBuffer is the capacity of the Progress channel
	progressBuffer = 16
)

// RunnerConfig contains configuration for the background runner
type RunnerConfig struct {
	Roots          []string      // Session directories to index
	Watch          bool          // Re-index on filesystem events
	Debounce       time.Duration // Quiet period before an event-driven pass (default: DefaultDebounce)
	RescanInterval time.Duration // Periodic full rescan, 0 disables
}

// RunnerStatus is a snapshot of the runner's state
type RunnerStatus struct {
	Running   bool
	Progress  types.Progress
	LastRun   time.Time
	LastStats *Statistics
	LastError string
}

// Runner keeps the index fresh in the background for long-running hosts.
// It runs the same pipeline as EnsureFresh on its own goroutine, committing
// and reloading readers at every checkpoint so searches see progress.
type Runner struct {
	store  storage.Store
	source Source
	cfg    RunnerConfig

	lock     IndexLock
	dirty    atomic.Bool // a pass was requested while one was running
	trigger  chan struct{}
	progress chan types.Progress

	fsw      *fsnotify.Watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	// debounce and status state
	mu     sync.Mutex
	timer  *time.Timer
	status RunnerStatus
}

// NewRunner creates a background runner. Call Start or Run to begin.
func NewRunner(store storage.Store, source Source, cfg RunnerConfig) *Runner {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Runner{
		store:    store,
		source:   source,
		cfg:      cfg,
		trigger:  make(chan struct{}, 1),
		progress: make(chan types.Progress, progressBuffer),
	}
}

// Start runs an initial pass and then keeps indexing on triggers, file
// events and the rescan interval until ctx is done or Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	if r.cfg.Watch {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		r.fsw = fsw

		watched := 0
		for _, root := range r.cfg.Roots {
			watched += r.addWatches(root)
		}
		slog.Info("session watcher started", "roots", len(r.cfg.Roots), "watched", watched)
	}

	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.loop(ctx)

	if r.fsw != nil {
		r.wg.Add(1)
		go r.watchLoop(ctx)
	}

	r.TriggerNow()
	return nil
}

// Run starts the runner and blocks until ctx is done
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	r.Stop()
	return nil
}

// Stop cancels any running pass and waits for the runner to exit.
// Uncommitted work from a cancelled pass is discarded.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
		if r.fsw != nil {
			_ = r.fsw.Close()
		}

		r.mu.Lock()
		if r.timer != nil {
			r.timer.Stop()
		}
		r.mu.Unlock()
	})
}

// TriggerNow requests a pass. Requests made while one is queued coalesce.
func (r *Runner) TriggerNow() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Progress delivers progress snapshots. Sends never block the pipeline, so
// a slow reader misses intermediate snapshots.
func (r *Runner) Progress() <-chan types.Progress {
	return r.progress
}

// Status returns a snapshot of the runner's state
func (r *Runner) Status() RunnerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// RunOnce runs a single pass on the caller's goroutine. It returns
// ErrIndexing if a pass is already running; that pass is then followed by
// another one.
func (r *Runner) RunOnce(ctx context.Context) (*Statistics, error) {
	if !r.lock.TryAcquire() {
		r.dirty.Store(true)
		return nil, ErrIndexing
	}
	defer func() {
		r.lock.Release()
		if r.dirty.Swap(false) {
			r.TriggerNow()
		}
	}()

	r.mu.Lock()
	r.status.Running = true
	r.status.Progress = types.Progress{}
	r.mu.Unlock()

	stats, err := r.pass(ctx)

	r.mu.Lock()
	r.status.Running = false
	r.status.LastRun = time.Now()
	if err != nil {
		r.status.LastError = err.Error()
	} else {
		r.status.LastError = ""
		r.status.LastStats = stats
	}
	r.mu.Unlock()

	return stats, err
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	var tick <-chan time.Time
	if r.cfg.RescanInterval > 0 {
		ticker := time.NewTicker(r.cfg.RescanInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
			r.runPass(ctx)
		case <-tick:
			r.runPass(ctx)
		}
	}
}

func (r *Runner) runPass(ctx context.Context) {
	_, err := r.RunOnce(ctx)
	if err == nil || errors.Is(err, ErrIndexing) || ctx.Err() != nil {
		return
	}
	slog.Warn("background indexing failed", "error", err)
}

// pass indexes whatever is pending. Skip-state is loaded fresh each pass so
// a concurrent CLI run's progress is not repeated.
func (r *Runner) pass(ctx context.Context) (*Statistics, error) {
	statePath := indexstate.PathFor(r.store.Location())
	state := indexstate.Load(statePath)

	toIndex := Pending(r.source, state, r.cfg.Roots)
	if len(toIndex) == 0 {
		return &Statistics{FailedFiles: make([]string, 0)}, nil
	}

	w, err := r.store.Writer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire index writer: %w", err)
	}
	defer func() { _ = w.Close() }()

	slog.Info("indexing sessions", "count", len(toIndex))

	stats, err := IndexFiles(ctx, w, r.source, state, toIndex, Options{
		OnProgress: r.publish,
		OnCheckpoint: func() {
			if err := state.Save(statePath); err != nil {
				slog.Warn("failed to checkpoint index state", "path", statePath, "error", err)
			}
			if err := r.store.ReloadReaders(ctx); err != nil {
				slog.Warn("failed to reload readers", "error", err)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	if err := state.Save(statePath); err != nil {
		return nil, fmt.Errorf("failed to save index state: %w", err)
	}
	if err := r.store.ReloadReaders(ctx); err != nil {
		return nil, err
	}

	slog.Info("indexed sessions",
		"indexed", stats.Indexed,
		"empty", stats.Empty,
		"failed", stats.Failed,
		"duration", stats.Duration)
	return stats, nil
}

func (r *Runner) publish(p types.Progress) {
	r.mu.Lock()
	r.status.Progress = p
	r.mu.Unlock()

	select {
	case r.progress <- p:
	default:
	}
}

func (r *Runner) watchLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-r.fsw.Events:
			if !ok {
				return
			}
			r.handleEvent(event)

		case err, ok := <-r.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("session watcher error", "error", err)
		}
	}
}

func (r *Runner) handleEvent(event fsnotify.Event) {
	path := event.Name

	// New project directory → start watching it; it may already hold files
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			r.addWatches(path)
			r.scheduleTrigger()
			return
		}
	}

	if !parser.IsSessionFile(path) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	r.scheduleTrigger()
}

// scheduleTrigger debounces event-driven passes
func (r *Runner) scheduleTrigger() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.cfg.Debounce, r.TriggerNow)
}

// addWatches watches dir and every non-hidden directory below it
func (r *Runner) addWatches(dir string) int {
	watched := 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Root may not exist yet
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Debug("session watcher: cannot walk", "path", path, "error", err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := r.fsw.Add(path); err != nil {
			slog.Warn("session watcher: cannot watch dir", "path", path, "error", err)
			return nil
		}
		watched++
		return nil
	})
	return watched
}
