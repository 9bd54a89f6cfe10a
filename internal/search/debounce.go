package search

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers into one trailing call. Each Trigger
// restarts the wait; only the most recent function runs, and superseded ones
// are discarded rather than queued.
type Debouncer struct {
	wait time.Duration

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// NewDebouncer returns a Debouncer with the given quiet period. A zero or
// negative wait makes Trigger run fn synchronously.
func NewDebouncer(wait time.Duration) *Debouncer {
	return &Debouncer{wait: wait}
}

// Trigger schedules fn after the quiet period, cancelling any pending call.
func (d *Debouncer) Trigger(fn func()) {
	if d.wait <= 0 {
		d.Stop()
		fn()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, func() {
		d.mu.Lock()
		current := seq == d.seq
		if current {
			d.timer = nil
		}
		d.mu.Unlock()

		// A timer that fired while Trigger or Stop held the lock is stale.
		if current {
			fn()
		}
	})
}

// Stop cancels the pending call, if any, and reports whether one was pending.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	return true
}
