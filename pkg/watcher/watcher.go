// Package watcher reports changes to the files below a directory, using
// fsnotify with a polling fallback.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the default polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

// Common errors.
var (
	ErrNotDirectory   = errors.New("watched path is not a directory")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDuration sets the debounce duration.
func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDuration = d
	}
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollInterval = d
	}
}

// WithOnChange sets the callback invoked when a watched file changes.
func WithOnChange(fn func()) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// WithOnError sets the callback invoked on errors.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) {
		w.forcePoll = force
	}
}

// WithSuffix restricts change notifications to files ending in suffix,
// e.g. ".json".
func WithSuffix(suffix string) WatcherOption {
	return func(w *Watcher) {
		w.suffix = suffix
	}
}

// Watcher monitors a directory tree for changes.
type Watcher struct {
	root             string
	suffix           string
	debounceDuration time.Duration
	pollInterval     time.Duration
	onChange         func()
	onError          func(error)
	forcePoll        bool

	fsWatcher   *fsnotify.Watcher
	debouncer   *Debouncer
	useFallback bool
	lastPrint   fingerprint

	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
	changeCh chan struct{}
}

// NewWatcher creates a watcher for the directory at root.
func NewWatcher(root string, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:             absPath,
		debounceDuration: DefaultDebounceDuration,
		pollInterval:     DefaultPollInterval,
		onChange:         func() {},
		onError:          func(error) {},
		changeCh:         make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.debouncer = NewDebouncer(w.debounceDuration)

	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	info, err := os.Stat(w.root)
	if err != nil {
		if os.IsPermission(err) {
			return ErrPermission
		}
		return err
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.useFallback = w.forcePoll || envBool("CV_FORCE_POLL")
	w.lastPrint = w.scan()

	if !w.useFallback {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			if err := w.addTree(fsw, w.root); err != nil {
				fsw.Close()
				w.useFallback = true
			} else {
				w.fsWatcher = fsw
				go w.watchFsnotify()
			}
		} else {
			w.useFallback = true
		}
	}

	if w.useFallback {
		go w.watchPolling()
	}

	w.started = true
	return nil
}

// addTree registers dir and every directory below it.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

// Stop stops watching. The change channel is not closed so that a reader
// blocked on Changed never sees a spurious receive.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}

	if w.cancel != nil {
		w.cancel()
	}

	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}

	w.debouncer.Cancel()
	w.started = false
}

// IsPolling returns true if the watcher is using polling mode.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.useFallback
}

// IsStarted returns true if the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Changed returns a channel that receives after a debounced change.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changeCh
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

func envBool(name string) bool {
	v := strings.TrimSpace(os.Getenv(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func (w *Watcher) relevant(path string) bool {
	return w.suffix == "" || strings.HasSuffix(path, w.suffix)
}

// watchFsnotify monitors using fsnotify events.
func (w *Watcher) watchFsnotify() {
	// Capture channel references to avoid race with Stop() setting fsWatcher to nil
	w.mu.RLock()
	if w.fsWatcher == nil {
		w.mu.RUnlock()
		return
	}
	fsw := w.fsWatcher
	events := fsw.Events
	errs := fsw.Errors
	w.mu.RUnlock()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fsw, event.Name); err != nil {
						w.onError(err)
					}
					w.debouncer.Trigger(w.notifyChange)
					continue
				}
			}
			if !w.relevant(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.debouncer.Trigger(w.notifyChange)
			}

		case err, ok := <-errs:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

// fingerprint summarizes the relevant files so polling can detect changes.
type fingerprint struct {
	count    int
	size     int64
	newest   time.Time
	pathHash uint64
}

func (w *Watcher) scan() fingerprint {
	var fp fingerprint
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				w.onError(ErrPermission)
			}
			return nil
		}
		if d.IsDir() || !w.relevant(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fp.count++
		fp.size += info.Size()
		if info.ModTime().After(fp.newest) {
			fp.newest = info.ModTime()
		}
		for _, c := range path {
			fp.pathHash = fp.pathHash*31 + uint64(c)
		}
		return nil
	})
	return fp
}

// watchPolling monitors using periodic directory scans.
func (w *Watcher) watchPolling() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			fp := w.scan()
			w.mu.Lock()
			changed := fp != w.lastPrint
			w.lastPrint = fp
			w.mu.Unlock()

			if changed {
				w.debouncer.Trigger(w.notifyChange)
			}
		}
	}
}

// notifyChange invokes the onChange callback and signals the change channel.
func (w *Watcher) notifyChange() {
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()

	if !started {
		return
	}

	w.onChange()

	// Non-blocking send to change channel
	select {
	case w.changeCh <- struct{}{}:
	default:
	}
}
