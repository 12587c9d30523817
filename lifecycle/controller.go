// Package lifecycle implements the controller that drives one embedded
// document through load, first render, readiness announcement, host
// acknowledgment and the corrective second render.
//
// The controller is a fixed state machine parameterized by a
// renderer.Builder. All of its methods run on the event loop goroutine.
package lifecycle

import (
	"context"
	"fmt"
	"io"

	"github.com/pithecene-io/framesync/channel"
	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/metrics"
	"github.com/pithecene-io/framesync/reactor"
	"github.com/pithecene-io/framesync/renderer"
	"github.com/pithecene-io/framesync/types"
)

// ErrorReporter receives render failures.
type ErrorReporter interface {
	Report(err error)
}

// Config configures a Controller.
type Config struct {
	Channel  channel.Channel
	Builder  renderer.Builder
	Reporter ErrorReporter
	// Container receives the initial width of each load. Optional.
	Container *reactor.ContainerWidth
	// Resize notifications are forwarded here. Optional.
	Reactor *reactor.Reactor
	// OnUnload runs when the host sends unload. Defaults to Teardown.
	OnUnload func()
	// OnTransition observes state changes. Optional.
	OnTransition func(from, to State)
	Metrics      *metrics.Collector
	Logger       *log.Logger
}

// Controller owns the renderer and the load/ack state machine.
type Controller struct {
	ctx          context.Context
	ch           channel.Channel
	builder      renderer.Builder
	reporter     ErrorReporter
	container    *reactor.ContainerWidth
	reactor      *reactor.Reactor
	onUnload     func()
	onTransition func(from, to State)
	metrics      *metrics.Collector
	logger       *log.Logger

	state   State
	current renderer.Renderer
	// completedFirstLoad flips once, when the host acknowledges the
	// first ready announcement.
	completedFirstLoad bool
	containerRecorded  bool
	announcedHeight    int
	torndown           bool
}

// New creates a Controller. ctx is passed to every render.
func New(ctx context.Context, cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	c := &Controller{
		ctx:          ctx,
		ch:           cfg.Channel,
		builder:      cfg.Builder,
		reporter:     cfg.Reporter,
		container:    cfg.Container,
		reactor:      cfg.Reactor,
		onUnload:     cfg.OnUnload,
		onTransition: cfg.OnTransition,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
	if c.onUnload == nil {
		c.onUnload = func() { _ = c.Teardown() }
	}
	return c
}

// SetReactor attaches the resize reactor. The reactor usually targets the
// controller, so it is created after it.
func (c *Controller) SetReactor(r *reactor.Reactor) {
	c.reactor = r
}

// Start registers the controller's handlers and announces hello.
func (c *Controller) Start() {
	c.ch.OnReceive(types.MessageLoad, c.HandleLoad)
	c.ch.OnReceive(types.MessageReadyAck, c.HandleReadyAck)
	c.ch.OnReceive(types.MessageContainerSize, c.HandleContainerSize)
	c.ch.OnReceive(types.MessageUnload, c.HandleUnload)
	c.ch.Send(types.StatusHello, nil)
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Current returns the renderer on display, or nil before the first load.
// It implements reactor.Target.
func (c *Controller) Current() renderer.Renderer { return c.current }

// CompletedFirstLoad reports whether the first load has been acknowledged.
func (c *Controller) CompletedFirstLoad() bool { return c.completedFirstLoad }

// HandleLoad accepts new content. A malformed load is returned as an error
// and left to the channel's unhandled-fault path; render failures are
// reported and end the cycle in Failed.
func (c *Controller) HandleLoad(m types.Message) error {
	if c.torndown {
		return nil
	}
	req, err := types.ParseRenderRequest(m)
	if err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}

	c.metrics.IncLoadReceived()
	c.ch.Send(types.StatusLoading, nil)
	c.recordContainer(req.Width)
	c.transition(FirstRender)

	existing := c.current
	r, err := c.builder.BuildOrUpdate(req, existing)
	if err != nil {
		c.fail(err)
		return nil
	}
	if r != existing {
		if closer, ok := existing.(io.Closer); ok {
			_ = closer.Close()
		}
		c.ch.Send(types.StatusConstructor, nil)
	}
	c.current = r
	if a, ok := r.(renderer.Announcer); ok {
		status, payload := a.Announce()
		c.ch.Send(status, payload)
	}

	r.SetWidth(req.Width)
	height, err := r.Render(c.ctx, req.Width)
	if err != nil {
		c.fail(err)
		return nil
	}
	c.metrics.IncRender()
	c.announcedHeight = height

	if c.completedFirstLoad {
		c.ch.Send(types.StatusReady, map[string]any{types.KeyHeight: height, types.KeyAck: false})
		c.metrics.IncReadySent()
		c.transition(Settled)
		return nil
	}

	c.ch.Send(types.StatusReady, types.ReadyPayload(height))
	c.metrics.IncReadySent()
	c.transition(AwaitingAck)
	return nil
}

// HandleReadyAck performs the corrective second render once the host has
// resized and repainted the frame. Acks outside AwaitingAck are ignored.
func (c *Controller) HandleReadyAck(types.Message) error {
	if c.torndown || c.state != AwaitingAck || c.current == nil {
		c.logger.Debug("ignoring readyAck", map[string]any{"state": c.state.String()})
		return nil
	}
	c.metrics.IncAckReceived()
	c.completedFirstLoad = true

	width := c.current.Width()
	height, err := c.current.Render(c.ctx, width)
	if err != nil {
		c.fail(err)
		return nil
	}
	c.metrics.IncRender()

	// The corrected height is not re-announced.
	if height != c.announcedHeight {
		c.logger.Debug("post-ack height differs from announced height", map[string]any{
			"announced": c.announcedHeight,
			"measured":  height,
			"width":     width,
		})
	}
	c.transition(Settled)
	return nil
}

// HandleContainerSize forwards a host-observed container width to the
// resize reactor.
func (c *Controller) HandleContainerSize(m types.Message) error {
	if c.torndown {
		return nil
	}
	width, ok := m.Int(types.KeyWidth)
	if !ok {
		return fmt.Errorf("lifecycle: containerSize without %q", types.KeyWidth)
	}
	if c.reactor == nil {
		return nil
	}
	c.reactor.Notify(width)
	return nil
}

// HandleUnload runs the unload hook.
func (c *Controller) HandleUnload(types.Message) error {
	c.onUnload()
	return nil
}

// Teardown detaches the renderer. A pending resize firing afterwards finds
// a detached renderer and does nothing.
func (c *Controller) Teardown() error {
	if c.torndown {
		return nil
	}
	c.torndown = true
	if closer, ok := c.current.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Report forwards a failure that happened outside a load cycle (a resize
// render) and moves the controller to Failed. It implements
// reactor.ErrorReporter.
func (c *Controller) Report(err error) {
	if c.reporter != nil {
		c.reporter.Report(err)
	}
	c.transition(Failed)
}

func (c *Controller) fail(err error) {
	c.metrics.IncRenderFailure()
	c.logger.Warn("render failed", map[string]any{"state": c.state.String(), "error": err.Error()})
	if c.reporter != nil {
		c.reporter.Report(err)
	}
	c.transition(Failed)
}

func (c *Controller) recordContainer(width int) {
	if c.container == nil {
		return
	}
	c.container.Set(width)
	if !c.containerRecorded {
		c.containerRecorded = true
		c.ch.Send(types.StatusContainerSizeLoad, map[string]any{types.KeyWidth: width})
	}
}

func (c *Controller) transition(to State) {
	from := c.state
	c.state = to
	if from == to {
		return
	}
	c.logger.Debug("state transition", map[string]any{"from": from.String(), "to": to.String()})
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}

var (
	_ reactor.Target        = (*Controller)(nil)
	_ reactor.ErrorReporter = (*Controller)(nil)
)
