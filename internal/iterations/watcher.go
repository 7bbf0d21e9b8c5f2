package iterations

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mesh-intelligence/playground/internal/schedule"
)

// DefaultDebounce is the default quiet period before a change is reported.
const DefaultDebounce = 250 * time.Millisecond

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Debounce  time.Duration
	Scheduler schedule.Scheduler
	Logger    *slog.Logger
}

// Watcher calls OnChange after iteration files in a directory are created,
// written, removed, or renamed, coalescing bursts of events.
type Watcher struct {
	dir      string
	onChange func()
	debounce *Debouncer
	logger   *slog.Logger
}

// NewWatcher returns a Watcher for dir.
func NewWatcher(dir string, onChange func(), opts WatcherOptions) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		onChange: onChange,
		debounce: NewDebouncer(opts.Debounce, opts.Scheduler),
		logger:   logger.With("component", "watcher"),
	}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching iterations", "dir", w.dir)

	defer w.debounce.Cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if _, ok := parseFileName(filepath.Base(ev.Name)); !ok {
		return
	}
	w.logger.Debug("iteration file changed", "path", ev.Name, "op", ev.Op.String())
	w.debounce.Trigger(w.onChange)
}

// Debouncer coalesces rapid triggers into one callback after a quiet period.
type Debouncer struct {
	duration time.Duration
	sched    schedule.Scheduler

	mu    sync.Mutex
	timer schedule.Timer
	seq   uint64
}

// NewDebouncer returns a Debouncer. A zero duration means DefaultDebounce and
// a nil scheduler means wall-clock timers.
func NewDebouncer(d time.Duration, sched schedule.Scheduler) *Debouncer {
	if d <= 0 {
		d = DefaultDebounce
	}
	if sched == nil {
		sched = schedule.Real{}
	}
	return &Debouncer{duration: d, sched: sched}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	seq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.sched.AfterFunc(d.duration, func() {
		d.mu.Lock()
		// A timer that fired while being replaced must not run.
		current := seq == d.seq
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		if current {
			callback()
		}
	})
}

// Cancel drops any pending callback.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
