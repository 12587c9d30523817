package lifecycle

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/pithecene-io/framesync/channel/channeltest"
	"github.com/pithecene-io/framesync/debounce/debouncetest"
	"github.com/pithecene-io/framesync/metrics"
	"github.com/pithecene-io/framesync/reactor"
	"github.com/pithecene-io/framesync/renderer"
	"github.com/pithecene-io/framesync/renderer/renderertest"
	"github.com/pithecene-io/framesync/types"
)

type captureReporter struct{ errs []error }

func (c *captureReporter) Report(err error) { c.errs = append(c.errs, err) }

type fixture struct {
	rec      *channeltest.Recorder
	builder  *renderertest.Builder
	reporter *captureReporter
	sched    *debouncetest.FakeScheduler
	metrics  *metrics.Collector
	ctrl     *Controller
	states   []State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rec:      channeltest.NewRecorder(),
		builder:  &renderertest.Builder{},
		reporter: &captureReporter{},
		sched:    debouncetest.New(),
		metrics:  metrics.NewCollector("loopback", "none", "test"),
	}
	container := &reactor.ContainerWidth{}
	f.ctrl = New(t.Context(), Config{
		Channel:   f.rec,
		Builder:   f.builder,
		Reporter:  f.reporter,
		Container: container,
		Metrics:   f.metrics,
		OnTransition: func(_, to State) {
			f.states = append(f.states, to)
		},
	})
	f.ctrl.SetReactor(reactor.New(t.Context(), reactor.Config{
		Scheduler: f.sched,
		Container: container,
		Target:    f.ctrl,
		Channel:   f.rec,
		Reporter:  f.ctrl,
		Metrics:   f.metrics,
	}))
	f.ctrl.Start()
	return f
}

func (f *fixture) deliver(t *testing.T, m types.Message) {
	t.Helper()
	if err := f.rec.Deliver(m); err != nil {
		t.Fatalf("deliver %s: %v", m.Type, err)
	}
}

func (f *fixture) load(t *testing.T, data string, width int) {
	t.Helper()
	f.deliver(t, types.LoadMessage(types.RenderRequest{Data: data, Width: width}))
}

func (f *fixture) ack(t *testing.T) {
	t.Helper()
	f.deliver(t, types.Message{Type: types.MessageReadyAck})
}

func (f *fixture) renderer(t *testing.T) *renderertest.Fake {
	t.Helper()
	built := f.builder.Built()
	if len(built) == 0 {
		t.Fatal("no renderer built")
	}
	return built[len(built)-1]
}

func TestStart_SendsHello(t *testing.T) {
	f := newFixture(t)

	if got := f.rec.Types(); !slices.Equal(got, []types.MessageType{types.StatusHello}) {
		t.Errorf("expected [hello], got %v", got)
	}
	if f.ctrl.State() != Idle {
		t.Errorf("expected idle, got %s", f.ctrl.State())
	}
}

func TestFirstLoad_ReadyThenAckRerender(t *testing.T) {
	f := newFixture(t)
	f.rec.Reset()

	f.load(t, "<svg>A</svg>", 300)

	r := f.renderer(t)
	if r.Data != "<svg>A</svg>" {
		t.Errorf("builder should receive unescaped data, got %q", r.Data)
	}
	if calls := r.Calls(); !slices.Equal(calls, []int{300}) {
		t.Fatalf("expected render at 300, got %v", calls)
	}
	want := []types.MessageType{
		types.StatusLoading,
		types.StatusContainerSizeLoad,
		types.StatusConstructor,
		types.StatusReady,
	}
	if got := f.rec.Types(); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	ready := f.rec.SentOfType(types.StatusReady)[0]
	if h, _ := ready.Int(types.KeyHeight); h != 150 {
		t.Errorf("expected height 150, got %d", h)
	}
	if !ready.Bool(types.KeyAck) {
		t.Error("first ready must request an ack")
	}
	if f.ctrl.State() != AwaitingAck {
		t.Fatalf("expected awaiting_ack, got %s", f.ctrl.State())
	}

	f.rec.Reset()
	f.ack(t)

	if calls := r.Calls(); !slices.Equal(calls, []int{300, 300}) {
		t.Errorf("expected exactly one re-render at 300, got %v", calls)
	}
	if n := len(f.rec.Sent()); n != 0 {
		t.Errorf("nothing may be sent after the ack re-render, got %v", f.rec.Types())
	}
	if f.ctrl.State() != Settled || !f.ctrl.CompletedFirstLoad() {
		t.Errorf("expected settled with completed first load, got %s", f.ctrl.State())
	}
	if !slices.Equal(f.states, []State{FirstRender, AwaitingAck, Settled}) {
		t.Errorf("unexpected transitions %v", f.states)
	}
}

func TestAck_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.load(t, "<svg/>", 300)
	f.ack(t)
	f.ack(t)

	if calls := f.renderer(t).Calls(); len(calls) != 2 {
		t.Errorf("second ack must be ignored, got renders %v", calls)
	}
	if s := f.metrics.Snapshot(); s.AcksReceived != 1 || s.ReadySent != 1 {
		t.Errorf("unexpected counters %+v", s)
	}
}

func TestAck_BeforeLoadIgnored(t *testing.T) {
	f := newFixture(t)
	f.ack(t)

	if f.ctrl.State() != Idle || f.ctrl.CompletedFirstLoad() {
		t.Errorf("ack before ready must be ignored, state %s", f.ctrl.State())
	}
}

func TestSubsequentLoad_ReusesRendererWithoutAck(t *testing.T) {
	f := newFixture(t)
	f.load(t, "<svg>one</svg>", 300)
	f.ack(t)

	r := f.renderer(t)
	r.Zoom = 2.5
	f.rec.Reset()

	f.load(t, "<svg>two</svg>", 320)

	if n := len(f.builder.Built()); n != 1 {
		t.Fatalf("renderer must be reused, built %d", n)
	}
	if r.Zoom != 2.5 {
		t.Error("view state lost on reuse")
	}
	if r.Data != "<svg>two</svg>" {
		t.Errorf("renderer not updated, data %q", r.Data)
	}
	want := []types.MessageType{types.StatusLoading, types.StatusReady}
	if got := f.rec.Types(); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	ready := f.rec.SentOfType(types.StatusReady)[0]
	if ready.Bool(types.KeyAck) {
		t.Error("subsequent loads must not request an ack")
	}
	if h, _ := ready.Int(types.KeyHeight); h != 160 {
		t.Errorf("expected height 160, got %d", h)
	}
	if f.ctrl.State() != Settled {
		t.Errorf("expected settled, got %s", f.ctrl.State())
	}

	f.ack(t)
	if calls := r.Calls(); !slices.Equal(calls, []int{300, 300, 320}) {
		t.Errorf("stray ack must not re-render, got %v", calls)
	}
}

func TestFirstLoad_RenderFailure(t *testing.T) {
	f := newFixture(t)
	f.builder.Fail = errors.New("cannot lay out")
	f.rec.Reset()

	f.load(t, "<svg/>", 300)

	if n := len(f.rec.SentOfType(types.StatusReady)); n != 0 {
		t.Error("no ready may be sent for a failed cycle")
	}
	if len(f.reporter.errs) != 1 || !renderer.IsRenderFailure(f.reporter.errs[0]) {
		t.Fatalf("expected one reported RenderFailure, got %v", f.reporter.errs)
	}
	if f.ctrl.State() != Failed {
		t.Errorf("expected failed, got %s", f.ctrl.State())
	}
	if calls := f.renderer(t).Calls(); len(calls) != 1 {
		t.Errorf("no retry expected, got %v", calls)
	}

	// The next load is independent and still requests the first ack.
	f.builder.Fail = nil
	f.load(t, "<svg/>", 300)
	ready := f.rec.SentOfType(types.StatusReady)
	if len(ready) != 1 || !ready[0].Bool(types.KeyAck) {
		t.Errorf("recovery load should send ready with ack, got %v", ready)
	}
	if f.ctrl.State() != AwaitingAck {
		t.Errorf("expected awaiting_ack, got %s", f.ctrl.State())
	}
}

func TestAck_RenderFailure(t *testing.T) {
	f := newFixture(t)
	f.load(t, "<svg/>", 300)
	f.renderer(t).Fail = errors.New("reflow failed")

	f.ack(t)

	if f.ctrl.State() != Failed || len(f.reporter.errs) != 1 {
		t.Errorf("expected failed with one report, got %s / %v", f.ctrl.State(), f.reporter.errs)
	}
}

func TestBuildFailure(t *testing.T) {
	f := newFixture(t)
	f.builder.BuildErr = errors.New("unknown content")

	f.load(t, "???", 300)

	if f.ctrl.State() != Failed || len(f.reporter.errs) != 1 {
		t.Errorf("expected failed with one report, got %s / %v", f.ctrl.State(), f.reporter.errs)
	}
	if f.ctrl.Current() != nil {
		t.Error("no renderer should be current")
	}
}

func TestMalformedLoad_Propagates(t *testing.T) {
	f := newFixture(t)
	f.rec.Reset()

	err := f.rec.Deliver(types.NewMessage(types.MessageLoad, map[string]any{types.KeyWidth: 300}))
	if !errors.Is(err, types.ErrMalformedLoad) {
		t.Fatalf("expected ErrMalformedLoad, got %v", err)
	}
	if n := len(f.rec.Sent()); n != 0 {
		t.Errorf("malformed load must not start a cycle, got %v", f.rec.Types())
	}
	if f.ctrl.State() != Idle {
		t.Errorf("expected idle, got %s", f.ctrl.State())
	}
}

func TestSettled_ResizeBurst(t *testing.T) {
	f := newFixture(t)
	f.load(t, "<svg/>", 300)
	f.ack(t)
	f.rec.Reset()

	resize := func(w int) {
		f.deliver(t, types.NewMessage(types.MessageContainerSize, map[string]any{types.KeyWidth: w}))
	}
	resize(450)
	f.sched.Advance(50 * time.Millisecond)
	resize(460)
	f.sched.Advance(50 * time.Millisecond)
	f.sched.Advance(reactor.DefaultDelay)

	r := f.renderer(t)
	if calls := r.Calls(); !slices.Equal(calls, []int{300, 300, 460}) {
		t.Fatalf("expected one render at 460, got %v", calls)
	}
	resizes := f.rec.SentOfType(types.StatusResize)
	if len(resizes) != 1 {
		t.Fatalf("expected one resize, got %v", f.rec.Types())
	}
	if h, _ := resizes[0].Int(types.KeyHeight); h != 230 {
		t.Errorf("expected height 230, got %d", h)
	}
}

func TestSettled_SameWidthNoop(t *testing.T) {
	f := newFixture(t)
	f.load(t, "<svg/>", 300)
	f.ack(t)
	f.rec.Reset()

	for range 2 {
		f.deliver(t, types.NewMessage(types.MessageContainerSize, map[string]any{types.KeyWidth: 300}))
	}
	f.sched.Advance(reactor.DefaultDelay)

	if calls := f.renderer(t).Calls(); len(calls) != 2 {
		t.Errorf("same width must not render, got %v", calls)
	}
	if n := len(f.rec.Sent()); n != 0 {
		t.Errorf("same width must not send, got %v", f.rec.Types())
	}
}

func TestResizeFailure_MovesToFailed(t *testing.T) {
	f := newFixture(t)
	f.load(t, "<svg/>", 300)
	f.ack(t)
	f.renderer(t).Fail = errors.New("too narrow")

	f.deliver(t, types.NewMessage(types.MessageContainerSize, map[string]any{types.KeyWidth: 10}))
	f.sched.Advance(reactor.DefaultDelay)

	if f.ctrl.State() != Failed {
		t.Errorf("expected failed, got %s", f.ctrl.State())
	}
	if len(f.reporter.errs) != 1 {
		t.Errorf("expected one report, got %v", f.reporter.errs)
	}
	if s := f.metrics.Snapshot(); s.RenderFailures != 1 {
		t.Errorf("RenderFailures = %d, want 1", s.RenderFailures)
	}
}

func TestContainerSizeLoad_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.load(t, "<svg/>", 300)
	f.ack(t)
	f.load(t, "<svg/>", 300)

	if n := len(f.rec.SentOfType(types.StatusContainerSizeLoad)); n != 1 {
		t.Errorf("expected one containerSizeLoad, got %d", n)
	}
}

func TestUnload_TearsDown(t *testing.T) {
	f := newFixture(t)
	f.load(t, "<svg/>", 300)
	f.ack(t)

	f.deliver(t, types.Message{Type: types.MessageUnload})

	r := f.renderer(t)
	f.deliver(t, types.NewMessage(types.MessageContainerSize, map[string]any{types.KeyWidth: 500}))
	f.sched.Advance(reactor.DefaultDelay)
	if calls := r.Calls(); len(calls) != 2 {
		t.Errorf("no render after teardown, got %v", calls)
	}

	f.load(t, "<svg/>", 300)
	if n := len(f.builder.Built()); n != 1 {
		t.Errorf("loads after teardown are ignored, built %d", n)
	}
}

func TestContainerSize_MalformedIgnoredAfterTeardown(t *testing.T) {
	f := newFixture(t)
	f.load(t, "<svg/>", 300)
	f.ack(t)

	if err := f.rec.Deliver(types.Message{Type: types.MessageContainerSize}); err == nil {
		t.Fatal("containerSize without width must fail while attached")
	}

	f.deliver(t, types.Message{Type: types.MessageUnload})

	for _, m := range []types.Message{
		{Type: types.MessageContainerSize},
		types.NewMessage(types.MessageContainerSize, map[string]any{types.KeyWidth: "wide"}),
	} {
		if err := f.rec.Deliver(m); err != nil {
			t.Errorf("containerSize after teardown must be ignored, got %v", err)
		}
	}
}

func TestUnload_CustomHook(t *testing.T) {
	called := false
	ctrl := New(t.Context(), Config{
		Channel:  channeltest.NewRecorder(),
		Builder:  &renderertest.Builder{},
		OnUnload: func() { called = true },
	})
	if err := ctrl.HandleUnload(types.Message{Type: types.MessageUnload}); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if !called {
		t.Error("expected OnUnload hook to run")
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		Idle:        "idle",
		FirstRender: "first_render",
		AwaitingAck: "awaiting_ack",
		Settled:     "settled",
		Failed:      "failed",
		State(99):   "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
