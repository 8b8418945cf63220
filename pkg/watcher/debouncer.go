package watcher

import (
	"sync"
	"time"
)

// DefaultDebounceDuration is the default quiet period before a change fires.
const DefaultDebounceDuration = 200 * time.Millisecond

// Debouncer coalesces bursts of triggers into one call after a quiet period.
type Debouncer struct {
	duration time.Duration
	mu       sync.Mutex
	timer    *time.Timer
}

// NewDebouncer returns a debouncer; d <= 0 selects DefaultDebounceDuration.
func NewDebouncer(d time.Duration) *Debouncer {
	if d <= 0 {
		d = DefaultDebounceDuration
	}
	return &Debouncer{duration: d}
}

// Trigger (re)starts the quiet period; fn runs when it elapses without
// another trigger.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
}

// Cancel drops a pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Duration returns the quiet period.
func (d *Debouncer) Duration() time.Duration {
	return d.duration
}
