// Package debounce provides a trailing-edge debouncer: a burst of triggers
// collapses into one action that runs after the burst has been quiet for
// the configured delay, with the value of the last trigger.
package debounce

import (
	"sync"
	"time"
)

// Stopper cancels a scheduled action. Stop reports whether the action was
// prevented from running.
type Stopper interface {
	Stop() bool
}

// Scheduler runs fn once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Stopper
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(d time.Duration, fn func()) Stopper

// AfterFunc implements Scheduler.
func (f SchedulerFunc) AfterFunc(d time.Duration, fn func()) Stopper {
	return f(d, fn)
}

// WallClock schedules on the runtime timer, running fn on its own goroutine.
var WallClock Scheduler = SchedulerFunc(func(d time.Duration, fn func()) Stopper {
	return time.AfterFunc(d, fn)
})

// Debouncer collapses triggers into a single delayed action.
type Debouncer[T any] struct {
	delay  time.Duration
	sched  Scheduler
	action func(T)

	mu      sync.Mutex
	pending Stopper
	last    T
	// gen invalidates timers whose Stop lost the race with their firing.
	gen uint64
}

// New creates a debouncer that runs action delay after the last Trigger.
// A nil scheduler means WallClock.
func New[T any](delay time.Duration, sched Scheduler, action func(T)) *Debouncer[T] {
	if sched == nil {
		sched = WallClock
	}
	return &Debouncer[T]{
		delay:  delay,
		sched:  sched,
		action: action,
	}
}

// Trigger records v and restarts the quiet window.
func (d *Debouncer[T]) Trigger(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = v
	d.gen++
	if d.pending != nil {
		d.pending.Stop()
	}
	gen := d.gen
	d.pending = d.sched.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Cancel drops any pending action. Returns true if one was pending.
func (d *Debouncer[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil {
		return false
	}
	d.gen++
	d.pending.Stop()
	d.pending = nil
	return true
}

// Pending returns true while a trigger is waiting for its window to close.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.last
	d.pending = nil
	d.mu.Unlock()

	d.action(v)
}
