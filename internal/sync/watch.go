package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch mode defaults.
const (
	DefaultPollInterval  = 5 * time.Minute
	DefaultWatchDebounce = 2 * time.Second
)

// CycleRunner runs one sync cycle. Satisfied by *Engine.
type CycleRunner interface {
	RunOnce(ctx context.Context) (*Report, error)
}

// WatchConfig configures a Watcher.
type WatchConfig struct {
	LocalRoot    string
	StateDir     string
	Filter       *Filter
	PollInterval time.Duration // re-sync period for remote changes; <= 0 disables polling
	Debounce     time.Duration // quiet time after the last local event
	OnCycle      func(*Report, error)
}

// Watcher re-runs sync cycles when the local tree changes or the poll
// interval elapses.
type Watcher struct {
	run    CycleRunner
	cfg    WatchConfig
	logger *slog.Logger
}

// NewWatcher creates a watcher driving run.
func NewWatcher(run CycleRunner, cfg WatchConfig, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultWatchDebounce
	}

	return &Watcher{run: run, cfg: cfg, logger: logger}
}

// Run syncs once, then keeps syncing until ctx is canceled. It returns nil
// on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if info, err := os.Stat(w.cfg.LocalRoot); err != nil || !info.IsDir() {
		return fmt.Errorf("sync: local root %s is not a directory", w.cfg.LocalRoot)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sync: creating filesystem watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.cfg.LocalRoot); err != nil {
		return err
	}

	w.logger.Info("watch: started",
		slog.String("local_root", w.cfg.LocalRoot),
		slog.Duration("poll_interval", w.cfg.PollInterval),
		slog.Duration("debounce", w.cfg.Debounce),
	)

	w.cycle(ctx, "startup")

	var poll <-chan time.Time

	if w.cfg.PollInterval > 0 {
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()

		poll = ticker.C
	}

	debounce := time.NewTimer(w.cfg.Debounce)
	debounce.Stop()

	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch: stopped")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			if w.relevant(fsw, ev) {
				debounce.Reset(w.cfg.Debounce)
			}

		case werr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("watch: filesystem watcher error", slog.String("error", werr.Error()))

		case <-debounce.C:
			w.cycle(ctx, "local change")

		case <-poll:
			w.cycle(ctx, "poll")
		}
	}
}

func (w *Watcher) cycle(ctx context.Context, trigger string) {
	w.logger.Debug("watch: cycle triggered", slog.String("trigger", trigger))

	report, err := w.run.RunOnce(ctx)
	if errors.Is(err, ErrAlreadyRunning) {
		w.logger.Info("watch: skipping cycle, another run is active")
		return
	}

	if err != nil && ctx.Err() == nil {
		w.logger.Error("watch: cycle failed", slog.String("error", err.Error()))
	}

	if w.cfg.OnCycle != nil && report != nil {
		w.cfg.OnCycle(report, err)
	}
}

// relevant reports whether ev should trigger a sync. New directories are
// added to the watch set on the way.
func (w *Watcher) relevant(fsw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}

	if w.inStateDir(ev.Name) {
		return false
	}

	if w.cfg.Filter != nil && !w.cfg.Filter.WorthSyncing(filepath.Dir(ev.Name), filepath.Base(ev.Name)) {
		w.logger.Debug("watch: ignoring event", slog.String("path", ev.Name))
		return false
	}

	if ev.Has(fsnotify.Create) {
		if err := w.addTree(fsw, ev.Name); err != nil {
			w.logger.Warn("watch: cannot watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
		}
	}

	return true
}

// addTree watches dir and every directory below it. Files are skipped;
// the state directory and filtered folders are not watched.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return fmt.Errorf("sync: walking %s for watch: %w", p, err)
		}

		if !d.IsDir() {
			return nil
		}

		if w.inStateDir(p) {
			return filepath.SkipDir
		}

		if p != w.cfg.LocalRoot && w.cfg.Filter != nil && !w.cfg.Filter.WorthSyncing(filepath.Dir(p), d.Name()) {
			return filepath.SkipDir
		}

		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("sync: watching %s: %w", p, err)
		}

		return nil
	})
}

func (w *Watcher) inStateDir(p string) bool {
	if w.cfg.StateDir == "" {
		return false
	}

	return p == w.cfg.StateDir || strings.HasPrefix(p, w.cfg.StateDir+string(filepath.Separator))
}
