// Package loop provides the single-threaded event loop that every piece of
// controller state is confined to. Transports and timers hand work to the
// loop with Post; tasks run one at a time in the order they were posted.
package loop

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/framesync/debounce"
)

// DefaultQueueSize is the task buffer used when New is given a non-positive size.
const DefaultQueueSize = 256

// Loop executes posted tasks sequentially on the goroutine calling Run.
type Loop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a loop with the given task buffer size.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
}

// Post enqueues fn. Returns false if the loop is closed; the task is dropped.
// Post blocks while the queue is full.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run executes tasks until ctx is canceled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.tasks:
			fn()
		}
	}
}

// RunPending executes queued tasks on the calling goroutine until the queue
// is empty. Returns the number of tasks run. Intended for tests and for
// draining before teardown.
func (l *Loop) RunPending() int {
	n := 0
	for {
		select {
		case fn := <-l.tasks:
			fn()
			n++
		default:
			return n
		}
	}
}

// Close stops the loop. Tasks still queued are dropped.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Done is closed once the loop is closed.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// AfterFunc schedules fn to be posted to the loop after d. It lets a
// debouncer fire on the loop goroutine instead of a timer goroutine.
func (l *Loop) AfterFunc(d time.Duration, fn func()) debounce.Stopper {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

var _ debounce.Scheduler = (*Loop)(nil)
