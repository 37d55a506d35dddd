package tracker

import (
	"sync"
	"time"
)

// Timer calls a function when no Reset happened for a whole interval. After
// firing it re-arms itself, so an idle Timer fires once per interval until it
// is stopped.
type Timer struct {
	clock    Clock
	interval time.Duration
	callback func()

	mu      sync.Mutex
	pending Stopper
	// gen invalidates callbacks scheduled before the last Reset or Stop.
	gen     uint64
	stopped bool
}

// NewTimer creates a started Timer.
func NewTimer(clock Clock, interval time.Duration, callback func()) *Timer {
	t := &Timer{
		clock:    clock,
		interval: interval,
		callback: callback,
	}
	t.mu.Lock()
	t.arm()
	t.mu.Unlock()
	return t
}

func (t *Timer) arm() {
	if t.pending != nil {
		t.pending.Stop()
	}
	t.gen++
	gen := t.gen
	t.pending = t.clock.AfterFunc(t.interval, func() { t.fire(gen) })
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if t.stopped || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.arm()
	t.mu.Unlock()

	t.callback()
}

// Reset pushes the deadline to one interval from now.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.arm()
}

// Stop cancels the timer. A callback that is already running is not
// interrupted.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.gen++
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}
