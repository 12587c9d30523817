// Package debouncetest provides a manually advanced scheduler for
// deterministic tests of debounced code.
package debouncetest

import (
	"sort"
	"sync"
	"time"

	"github.com/pithecene-io/framesync/debounce"
)

// FakeScheduler is a debounce.Scheduler driven by Advance instead of wall time.
// Due actions run synchronously on the goroutine calling Advance.
type FakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
	seq    int
}

type fakeTimer struct {
	s       *FakeScheduler
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

// New creates a FakeScheduler at time zero.
func New() *FakeScheduler {
	return &FakeScheduler{}
}

// AfterFunc implements debounce.Scheduler.
func (s *FakeScheduler) AfterFunc(d time.Duration, fn func()) debounce.Stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &fakeTimer{s: s, at: s.now + d, seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Stop implements debounce.Stopper.
func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d and runs every action that became due.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	now := s.now
	var due []*fakeTimer
	remaining := s.timers[:0]
	for _, t := range s.timers {
		switch {
		case t.stopped:
		case t.at <= now:
			t.fired = true
			due = append(due, t)
		default:
			remaining = append(remaining, t)
		}
	}
	s.timers = remaining
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		t.fn()
	}
}

// Pending returns the number of scheduled, unstopped actions.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

var _ debounce.Scheduler = (*FakeScheduler)(nil)
