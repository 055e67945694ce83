// Package watch recodes images as they are dropped into a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	imageoptimizer "github.com/Skryldev/image-optimizer"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// Optimizer is the part of imageoptimizer.Optimizer the watcher drives.
// The worker pool must be started.
type Optimizer interface {
	Submit(job core.Job) error
	Save(ctx context.Context, r *core.RecodeResult) error
}

// Config controls a Watcher.
type Config struct {
	Dir      string
	Debounce time.Duration // quiet period per path before a file is picked up
	Quality  int           // 0 = optimizer default
}

// Result is reported once per picked-up file.
type Result struct {
	JobID  string
	Path   string
	Output *core.RecodeResult // nil on failure
	Err    error
}

// Watcher monitors a single directory (not recursive).
type Watcher struct {
	cfg     Config
	opt     Optimizer
	logger  core.Logger
	watcher *fsnotify.Watcher

	onResult func(Result)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]string // job ID → path
	results chan core.JobResult
	done    chan struct{}
}

// New creates a Watcher for cfg.Dir.
func New(cfg Config, opt Optimizer, logger core.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("watch: directory is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = nopLogger{}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		cfg:      cfg,
		opt:      opt,
		logger:   logger,
		watcher:  fsw,
		onResult: func(Result) {},
		timers:   make(map[string]*time.Timer),
		pending:  make(map[string]string),
		results:  make(chan core.JobResult, 64),
		done:     make(chan struct{}),
	}, nil
}

// OnResult sets a callback invoked from Run for every finished file.
// Must be called before Run.
func (w *Watcher) OnResult(fn func(Result)) {
	if fn != nil {
		w.onResult = fn
	}
}

// Run watches until ctx is cancelled.  Successful outputs are saved through
// the optimizer before the callback fires.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	if err := w.watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch folder %s: %w", w.cfg.Dir, err)
	}
	w.logger.Info("watch.started", "dir", w.cfg.Dir, "debounce", w.cfg.Debounce.String())

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if ignored(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch.error", "error", err.Error())

		case jr := <-w.results:
			w.finish(ctx, jr)
		}
	}
}

// ignored skips hidden and temporary files, including the ones the local
// saver writes before renaming.
func ignored(path string) bool {
	base := filepath.Base(path)
	return base == "" || base[0] == '.' || filepath.Ext(base) == ".tmp"
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.pickUp(ctx, path)
	})
}

// pickUp reads path, checks it is an image and submits a recode job.
// Directories, including the output folder when it sits inside Dir, are
// skipped without a result.
func (w *Watcher) pickUp(ctx context.Context, path string) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return
	}

	id := uuid.NewString()
	w.mu.Lock()
	w.pending[id] = path
	w.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.forget(id)
			return // removed during the quiet period
		}
		w.deliver(core.JobResult{JobID: id, Err: apperrors.WithFile(
			apperrors.Wrap(apperrors.CategoryInput, "watch.read", err), filepath.Base(path), apperrors.CategoryInput)})
		return
	}

	accepted, rejected, err := imageoptimizer.FilterImages([]imageoptimizer.InputFile{{Name: filepath.Base(path), Data: data}})
	if err != nil {
		if len(rejected) > 0 {
			err = rejected[0].Err
		}
		w.deliver(core.JobResult{JobID: id, Err: err})
		return
	}

	job := core.Job{
		ID:       id,
		Ctx:      ctx,
		Source:   accepted[0].Source(),
		Quality:  w.cfg.Quality,
		ResultCh: w.results,
	}
	if err := w.opt.Submit(job); err != nil {
		w.deliver(core.JobResult{JobID: id, Err: apperrors.WithFile(err, filepath.Base(path), apperrors.CategoryPipeline)})
	}
}

func (w *Watcher) deliver(jr core.JobResult) {
	select {
	case w.results <- jr:
	case <-w.done:
	}
}

func (w *Watcher) forget(id string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	path := w.pending[id]
	delete(w.pending, id)
	return path
}

func (w *Watcher) finish(ctx context.Context, jr core.JobResult) {
	res := Result{JobID: jr.JobID, Path: w.forget(jr.JobID), Output: jr.Result, Err: jr.Err}
	if res.Err == nil && res.Output != nil {
		if err := w.opt.Save(ctx, res.Output); err != nil {
			res.Output, res.Err = nil, err
		}
	}

	if res.Err != nil {
		w.logger.Warn("watch.failed", "job", res.JobID, "path", res.Path, "error", res.Err.Error())
	} else {
		w.logger.Info("watch.saved",
			"job", res.JobID,
			"path", res.Path,
			"output", res.Output.Filename,
			"reduction_pct", res.Output.Reduction(),
		)
	}
	w.onResult(res)
}

func (w *Watcher) stop() {
	close(w.done)
	w.mu.Lock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
	w.mu.Unlock()
	w.watcher.Close()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
