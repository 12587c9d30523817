// Package runtime assembles the embedded side of framesync: one event loop,
// one message bus, the lifecycle controller, its resize reactor and the
// error reporter, all bound to a single page session.
package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/pithecene-io/framesync/adapter"
	"github.com/pithecene-io/framesync/channel"
	"github.com/pithecene-io/framesync/debounce"
	"github.com/pithecene-io/framesync/lifecycle"
	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/loop"
	"github.com/pithecene-io/framesync/metrics"
	"github.com/pithecene-io/framesync/reactor"
	"github.com/pithecene-io/framesync/renderer"
	"github.com/pithecene-io/framesync/report"
	"github.com/pithecene-io/framesync/session"
	"github.com/pithecene-io/framesync/types"
)

// FrameConfig configures a Frame.
type FrameConfig struct {
	// Parent is the transport to the host. Nil runs standalone (loopback).
	Parent channel.Transport
	// Builder turns load events into renderers (default renderer.NewAuto()).
	Builder renderer.Builder
	// Session is the page session. Nil creates one.
	Session *session.Session
	// Sink receives error telemetry. Nil disables telemetry.
	Sink adapter.Adapter
	// HelpURL is appended to user-visible errors.
	HelpURL string
	// TelemetryCap overrides the per-session telemetry limit.
	TelemetryCap int
	// Debounce is the resize settling window (default 200ms).
	Debounce time.Duration
	// Scheduler overrides the resize timer source (default: the frame loop).
	Scheduler debounce.Scheduler
	// SelfAck answers ready announcements locally. Only meaningful
	// standalone, where no host exists to acknowledge.
	SelfAck bool
	// Collector is the metrics collector. If nil, no metrics are recorded.
	Collector *metrics.Collector
	// Logger defaults to a stderr logger with session context, teed into
	// the session's debug buffer.
	Logger *log.Logger
}

// Frame is one running embedded controller.
type Frame struct {
	loop       *loop.Loop
	bus        *channel.Bus
	session    *session.Session
	controller *lifecycle.Controller
	reactor    *reactor.Reactor
	reporter   *report.Reporter
	container  *reactor.ContainerWidth
	collector  *metrics.Collector
	logger     *log.Logger
	unloaded   chan struct{}
}

// NewFrame wires a Frame. ctx bounds every render the frame performs.
func NewFrame(ctx context.Context, cfg *FrameConfig) *Frame {
	sess := cfg.Session
	if sess == nil {
		sess = session.New(session.Config{})
	}
	logger := cfg.Logger
	if logger == nil {
		meta := sess.Meta()
		logger = log.NewLogger(&meta)
	}
	logger = logger.Tee(sess.DebugBuffer())

	builder := cfg.Builder
	if builder == nil {
		builder = renderer.NewAuto()
	}

	l := loop.New(0)
	bus := channel.NewBus(l, cfg.Parent, logger)
	bus.SetMetrics(cfg.Collector)

	f := &Frame{
		loop:      l,
		bus:       bus,
		session:   sess,
		container: &reactor.ContainerWidth{},
		collector: cfg.Collector,
		logger:    logger,
		unloaded:  make(chan struct{}),
	}

	f.reporter = report.New(report.Config{
		Channel: bus,
		Session: sess,
		Sink:    cfg.Sink,
		HelpURL: cfg.HelpURL,
		Cap:     cfg.TelemetryCap,
		Metrics: cfg.Collector,
		Logger:  logger,
	})
	bus.OnUnhandled(f.reporter.ReportFatal)

	f.controller = lifecycle.New(ctx, lifecycle.Config{
		Channel:   bus,
		Builder:   builder,
		Reporter:  f.reporter,
		Container: f.container,
		OnUnload:  f.unload,
		OnTransition: func(from, to lifecycle.State) {
			logger.Info("lifecycle", map[string]any{"from": from.String(), "to": to.String()})
		},
		Metrics: cfg.Collector,
		Logger:  logger,
	})

	sched := cfg.Scheduler
	if sched == nil {
		sched = l
	}
	f.reactor = reactor.New(ctx, reactor.Config{
		Delay:     cfg.Debounce,
		Scheduler: sched,
		Container: f.container,
		Target:    f.controller,
		Channel:   bus,
		Reporter:  f.controller,
		Metrics:   cfg.Collector,
		Logger:    logger,
	})
	f.controller.SetReactor(f.reactor)

	if cfg.SelfAck && !bus.Embedded() {
		bus.OnReceive(types.StatusReady, func(m types.Message) error {
			if m.Bool(types.KeyAck) {
				bus.Send(types.MessageReadyAck, nil)
			}
			return nil
		})
	}

	// Hooks run in reverse: controller first, loop last.
	sess.OnTeardown(func() error { l.Close(); return nil })
	sess.OnTeardown(bus.Close)
	sess.OnTeardown(f.reporter.Close)
	sess.OnTeardown(f.controller.Teardown)

	return f
}

// Bus returns the frame's message bus.
func (f *Frame) Bus() *channel.Bus { return f.bus }

// Controller returns the lifecycle controller. Only touch it from Post.
func (f *Frame) Controller() *lifecycle.Controller { return f.controller }

// Session returns the page session.
func (f *Frame) Session() *session.Session { return f.session }

// Collector returns the metrics collector.
func (f *Frame) Collector() *metrics.Collector { return f.collector }

// Post runs fn on the frame's loop.
func (f *Frame) Post(fn func()) bool { return f.loop.Post(fn) }

// Unloaded is closed once the session has been torn down.
func (f *Frame) Unloaded() <-chan struct{} { return f.unloaded }

// Run starts the controller and processes messages until the host unloads
// the page, the parent transport ends, or ctx is canceled. The session is
// always torn down before Run returns.
//
// Execution flow:
//  1. Record the page load in the navigation log
//  2. Register handlers and announce hello (on the loop)
//  3. Listen to the parent transport (concurrent)
//  4. Run the loop until unload or cancellation
//  5. Tear down the session
func (f *Frame) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := f.session.Start(ctx); err != nil {
		f.logger.Warn("navigation log unavailable", map[string]any{"error": err.Error()})
	}
	f.logger.Info("frame starting", map[string]any{"embedded": f.bus.Embedded()})
	f.loop.Post(f.controller.Start)

	listenDone := make(chan error, 1)
	go func() {
		err := f.bus.Listen(ctx)
		if f.session.Unloading() {
			// Teardown closed the transport under the read.
			err = nil
		}
		// End of the parent stream means the host is gone.
		f.loop.Post(f.unload)
		listenDone <- err
	}()

	runErr := f.loop.Run(ctx)
	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		runErr = nil
	}

	// Unload outside the loop when the loop stopped for another reason.
	unloadErr := f.teardown(context.WithoutCancel(ctx))
	cancel()

	var listenErr error
	if f.bus.Embedded() {
		select {
		case listenErr = <-listenDone:
		case <-time.After(time.Second):
		}
	}

	f.logger.Info("frame stopped", map[string]any{
		"state": f.controller.State().String(),
	})
	_ = f.logger.Sync()
	return errors.Join(runErr, listenErr, unloadErr)
}

// unload runs on the loop when the host sends unload or goes away.
func (f *Frame) unload() {
	if err := f.teardown(context.Background()); err != nil {
		f.logger.Warn("teardown failed", map[string]any{"error": err.Error()})
	}
}

func (f *Frame) teardown(ctx context.Context) error {
	err := f.session.Unload(ctx)
	select {
	case <-f.unloaded:
	default:
		close(f.unloaded)
	}
	return err
}
