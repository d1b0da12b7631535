package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/dwell.report/internal/monitoring"
	"github.com/banshee-data/dwell.report/internal/timeutil"
)

// Watcher hot-reloads a tuning config file. It polls the file's mtime and
// size, waits for a settle delay after the last observed change (so a
// half-written file is not loaded mid-edit), revalidates, and only then
// swaps the current config and notifies listeners. An invalid rewrite is
// logged and rejected; the last known good config stays in effect.
type Watcher struct {
	// PollInterval is how often the file is stat'ed. Default 1s.
	PollInterval time.Duration
	// SettleDelay is how long the file must stay unchanged after a
	// modification before it is reloaded. Default 1s.
	SettleDelay time.Duration

	path  string
	clock timeutil.Clock

	mu        sync.RWMutex
	current   *TuningConfig
	listeners []func(*TuningConfig)

	lastModTime time.Time
	lastSize    int64
	dirty       bool
	dirtyAt     time.Time

	reloads  int64
	rejected int64
}

// WatcherStats reports reload activity for the status endpoints.
type WatcherStats struct {
	Reloads  int64 `json:"reloads"`
	Rejected int64 `json:"rejected"`
}

// NewWatcher creates a watcher over path with initial as the starting
// config. The file's current mtime/size become the baseline, so the watcher
// only reacts to changes made after construction.
func NewWatcher(path string, initial *TuningConfig, clock timeutil.Clock) *Watcher {
	w := &Watcher{
		PollInterval: time.Second,
		SettleDelay:  time.Second,
		path:         path,
		clock:        clock,
		current:      initial,
	}
	if info, err := os.Stat(path); err == nil {
		w.lastModTime = info.ModTime()
		w.lastSize = info.Size()
	}
	return w
}

// Current returns the active config. Callers must treat it as read-only.
func (w *Watcher) Current() *TuningConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn to be called with each accepted reload. Listeners
// run on the watcher goroutine and should hand off long work.
func (w *Watcher) OnChange(fn func(*TuningConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Stats returns reload counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WatcherStats{Reloads: w.reloads, Rejected: w.rejected}
}

// Run polls until ctx is cancelled. Intended to be started as a goroutine
// from the server main.
func (w *Watcher) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.PollInterval)
	defer ticker.Stop()

	monitoring.Logf("config: watching %s for changes", w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			w.poll(now)
		}
	}
}

// poll runs one stat-and-maybe-reload step at the given time.
func (w *Watcher) poll(now time.Time) {
	info, err := os.Stat(w.path)
	if err != nil {
		// A missing or unreadable file keeps the last known good config.
		return
	}

	w.mu.Lock()
	if !info.ModTime().Equal(w.lastModTime) || info.Size() != w.lastSize {
		w.lastModTime = info.ModTime()
		w.lastSize = info.Size()
		w.dirty = true
		w.dirtyAt = now
		w.mu.Unlock()
		return
	}
	settled := w.dirty && now.Sub(w.dirtyAt) >= w.SettleDelay
	if settled {
		w.dirty = false
	}
	w.mu.Unlock()

	if settled {
		w.reload()
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadTuningConfig(w.path)
	if err != nil {
		w.mu.Lock()
		w.rejected++
		w.mu.Unlock()
		monitoring.Logf("config: reload rejected, keeping last known good: %v", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.reloads++
	listeners := make([]func(*TuningConfig), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	monitoring.Logf("config: reloaded %s", w.path)
	for _, fn := range listeners {
		fn(cfg)
	}
}
