// Package reactor keeps a rendered document in sync with its container width.
//
// Container width notifications are collapsed with a trailing debounce; when
// the window closes the reactor re-renders only if the width actually changed.
package reactor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/framesync/channel"
	"github.com/pithecene-io/framesync/debounce"
	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/metrics"
	"github.com/pithecene-io/framesync/renderer"
	"github.com/pithecene-io/framesync/types"
)

// DefaultDelay is the quiet period before a resize burst is acted on.
const DefaultDelay = 200 * time.Millisecond

// Container reports the current width of the element hosting the content.
type Container interface {
	Width() int
}

// ContainerWidth is a Container whose width is set by the host's
// containerSize notifications.
type ContainerWidth struct {
	w atomic.Int64
}

// Width implements Container.
func (c *ContainerWidth) Width() int {
	return int(c.w.Load())
}

// Set records a newly observed width.
func (c *ContainerWidth) Set(width int) {
	c.w.Store(int64(width))
}

// Target yields the renderer currently on display, or nil before the first load.
type Target interface {
	Current() renderer.Renderer
}

// ErrorReporter receives render failures from the reactor.
type ErrorReporter interface {
	Report(err error)
}

// Config configures a Reactor.
type Config struct {
	// Delay is the debounce window. Zero means DefaultDelay.
	Delay     time.Duration
	Scheduler debounce.Scheduler
	Container Container
	Target    Target
	Channel   channel.Channel
	Reporter  ErrorReporter
	Metrics   *metrics.Collector
	Logger    *log.Logger
}

// Reactor turns bursts of container size notifications into at most one
// re-render per settling period.
//
// All callbacks run on the scheduler's goroutine; with a loop.Loop scheduler
// that is the same goroutine that runs the lifecycle controller.
type Reactor struct {
	ctx       context.Context
	container Container
	target    Target
	ch        channel.Channel
	reporter  ErrorReporter
	metrics   *metrics.Collector
	logger    *log.Logger
	debouncer *debounce.Debouncer[struct{}]
}

// New creates a Reactor. ctx is passed to every render the reactor performs.
func New(ctx context.Context, cfg Config) *Reactor {
	delay := cfg.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	sched := cfg.Scheduler
	if sched == nil {
		sched = debounce.WallClock
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	container := cfg.Container
	if container == nil {
		container = &ContainerWidth{}
	}

	r := &Reactor{
		ctx:       ctx,
		container: container,
		target:    cfg.Target,
		ch:        cfg.Channel,
		reporter:  cfg.Reporter,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
	r.debouncer = debounce.New(delay, sched, func(struct{}) { r.fire() })
	return r
}

// Container returns the container the reactor reads widths from.
func (r *Reactor) Container() Container {
	return r.container
}

// Notify records a new container width (when the container accepts one)
// and restarts the debounce window.
func (r *Reactor) Notify(width int) {
	if c, ok := r.container.(interface{ Set(int) }); ok {
		c.Set(width)
	}
	r.Observe()
}

// Observe restarts the debounce window without changing the recorded width.
// Use it when the container's width is tracked elsewhere.
func (r *Reactor) Observe() {
	r.debouncer.Trigger(struct{}{})
}

// Stop cancels a pending firing.
func (r *Reactor) Stop() {
	r.debouncer.Cancel()
}

func (r *Reactor) fire() {
	if r.target == nil {
		return
	}
	current := r.target.Current()
	if current == nil {
		return
	}

	width := r.container.Width()
	if width == current.Width() {
		r.metrics.IncResizeNoop()
		r.logger.Debug("resize skipped, width unchanged", map[string]any{"width": width})
		return
	}

	current.SetWidth(width)
	height, err := current.Render(r.ctx, width)
	if errors.Is(err, renderer.ErrDetached) {
		r.logger.Debug("resize fired into detached renderer", nil)
		return
	}
	if err != nil {
		r.metrics.IncRenderFailure()
		r.logger.Warn("resize render failed", map[string]any{"width": width, "error": err.Error()})
		if r.reporter != nil {
			r.reporter.Report(err)
		}
		return
	}

	r.metrics.IncRender()
	r.metrics.IncResizeSent()
	r.ch.Send(types.StatusResize, types.ResizePayload(height))
}
