package collab

import (
	"sync"
	"time"
)

// Throttle runs a function at most once per interval: immediately if the
// interval has elapsed since the last run, otherwise as a single trailing
// call carrying the most recently submitted function. Later submissions
// replace the pending one, so at most one trailing call is ever
// scheduled and the freshest state always wins. This is never a
// fixed-rate timer; an idle throttle schedules nothing.
type Throttle struct {
	clock    Clock
	interval time.Duration

	mu      sync.Mutex
	last    time.Time
	pending Timer
	latest  func()
}

func NewThrottle(clock Clock, interval time.Duration) *Throttle {
	return &Throttle{clock: clock, interval: interval}
}

func (t *Throttle) Call(fn func()) {
	t.mu.Lock()
	now := t.clock.Now()
	if t.pending == nil && now.Sub(t.last) >= t.interval {
		t.last = now
		t.mu.Unlock()
		fn()
		return
	}

	t.latest = fn
	if t.pending == nil {
		delay := t.interval - now.Sub(t.last)
		if delay < 0 {
			delay = 0
		}
		t.pending = t.clock.AfterFunc(delay, t.fire)
	}
	t.mu.Unlock()
}

func (t *Throttle) fire() {
	t.mu.Lock()
	fn := t.latest
	t.latest = nil
	t.pending = nil
	t.last = t.clock.Now()
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop cancels any pending trailing call.
func (t *Throttle) Stop() {
	t.mu.Lock()
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.latest = nil
	t.mu.Unlock()
}

// Debounce runs a function only after interval has passed with no new
// submissions; every Call resets the timer and replaces the pending
// function. The classic trailing debounce.
type Debounce struct {
	clock    Clock
	interval time.Duration

	mu      sync.Mutex
	pending Timer
	fn      func()
}

func NewDebounce(clock Clock, interval time.Duration) *Debounce {
	return &Debounce{clock: clock, interval: interval}
}

func (d *Debounce) Call(fn func()) {
	d.mu.Lock()
	if d.pending != nil {
		d.pending.Stop()
	}
	d.fn = fn
	d.pending = d.clock.AfterFunc(d.interval, d.fire)
	d.mu.Unlock()
}

func (d *Debounce) fire() {
	d.mu.Lock()
	fn := d.fn
	d.fn = nil
	d.pending = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Flush runs the pending function immediately, if any. Used on tab
// close / navigation so no debounced work is silently lost.
func (d *Debounce) Flush() {
	d.mu.Lock()
	fn := d.fn
	if d.pending != nil {
		d.pending.Stop()
	}
	d.fn = nil
	d.pending = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Pending reports whether a call is currently scheduled.
func (d *Debounce) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop cancels the pending call without running it.
func (d *Debounce) Stop() {
	d.mu.Lock()
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.fn = nil
	d.mu.Unlock()
}
