package kiosk

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the current [Registry] and reloads it when the registry file
// changes. It listens for filesystem events on the file's directory, so
// editors that replace the file are handled, and also polls at a fixed
// interval in case events are lost. If fsnotify cannot be set up it polls
// only.
//
// A reload that fails to parse keeps the previous registry.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Registry)

	mu        sync.Mutex
	current   *Registry
	lastMtime time.Time
	lastHash  [sha256.Size]byte

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOnChange registers fn to run after every successful reload that
// changed the registry contents.
func WithOnChange(fn func(old, new *Registry)) WatcherOption {
	return func(w *Watcher) { w.onChange = fn }
}

// NewWatcher loads the registry at path and starts watching it. A missing
// file starts as an empty registry; malformed JSON is an error.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("kiosk: resolve %q: %w", path, err)
	}
	w := &Watcher{
		path:     abs,
		interval: 5 * time.Second,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	reg, hash, mtime, err := w.loadAndHash()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("kiosk registry file not found, no kiosk can authenticate", "path", w.path)
		reg = NewRegistry(nil)
	case err != nil:
		return nil, fmt.Errorf("kiosk: watcher initial load: %w", err)
	}
	w.current = reg
	w.lastHash = hash
	w.lastMtime = mtime

	go w.run()
	return w, nil
}

// Current returns the most recently loaded registry.
func (w *Watcher) Current() *Registry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends watching and waits for the background goroutine to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	<-w.stopped
}

func (w *Watcher) run() {
	defer close(w.stopped)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("kiosk watcher: fsnotify unavailable, polling", "err", err)
		w.poll()
		return
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		slog.Warn("kiosk watcher: cannot watch directory, polling", "dir", filepath.Dir(w.path), "err", err)
		w.poll()
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fw.Events:
			if !ok {
				w.poll()
				return
			}
			if filepath.Clean(event.Name) == w.path && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				// Let the writer finish before reading.
				time.Sleep(50 * time.Millisecond)
				w.check()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				w.poll()
				return
			}
			slog.Warn("kiosk watcher: fsnotify error", "err", err)
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file if its mtime and content changed.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("kiosk watcher: cannot stat registry", "path", w.path, "err", err)
		}
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()
	if info.ModTime().Equal(mtime) {
		return
	}

	reg, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("kiosk watcher: keeping previous registry", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = reg
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	slog.Info("kiosk registry reloaded", "path", w.path, "kiosks", reg.Len())
	if w.onChange != nil {
		w.onChange(old, reg)
	}
}

func (w *Watcher) loadAndHash() (*Registry, [sha256.Size]byte, time.Time, error) {
	var zero [sha256.Size]byte

	f, err := os.Open(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	return reg, sha256.Sum256(data), info.ModTime(), nil
}
