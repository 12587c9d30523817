package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/framesync/adapter"
	"github.com/pithecene-io/framesync/channel/channeltest"
	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/metrics"
	"github.com/pithecene-io/framesync/renderer"
	"github.com/pithecene-io/framesync/session"
	"github.com/pithecene-io/framesync/types"
)

type recordingSink struct {
	mu      sync.Mutex
	records []*adapter.ErrorRecord
	err     error
	closed  bool
}

func (s *recordingSink) Publish(_ context.Context, r *adapter.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func (s *recordingSink) Records() []*adapter.ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*adapter.ErrorRecord(nil), s.records...)
}

type extensionError struct{}

func (extensionError) Error() string { return "Script error." }
func (extensionError) StackTrace() string {
	return "at inject (chrome-extension://abcdef/content.js:10:3)"
}

type fixture struct {
	rec     *channeltest.Recorder
	sink    *recordingSink
	sess    *session.Session
	metrics *metrics.Collector
	rep     *Reporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	start := time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)
	now := start
	buf := log.NewDebugBuffer(10)
	f := &fixture{
		rec:  channeltest.NewRecorder(),
		sink: &recordingSink{},
		sess: session.New(session.Config{
			ID:          "sess-1",
			URL:         "https://render.example/embed",
			Referrer:    "https://host.example/page",
			Scripts:     []string{"https://render.example/app.js", "moz-extension://x/y.js"},
			DebugBuffer: buf,
			Now: func() time.Time {
				now = now.Add(250 * time.Millisecond)
				return now
			},
		}),
		metrics: metrics.NewCollector("loopback", "test", "sess-1"),
	}
	if err := f.sess.Start(t.Context()); err != nil {
		t.Fatalf("session start: %v", err)
	}
	log.NewLoggerWithWriter(nil, buf).Info("rendering", nil)

	f.rep = New(Config{
		Channel: f.rec,
		Session: f.sess,
		Sink:    f.sink,
		HelpURL: "https://help.example",
		Metrics: f.metrics,
	})
	return f
}

func TestReport_SendsCombinedText(t *testing.T) {
	f := newFixture(t)

	f.rep.Report(errors.New("diagram has no nodes"))
	f.rep.Wait()

	errs := f.rec.SentOfType(types.StatusError)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error status, got %d", len(errs))
	}
	text, _ := errs[0].Text(types.KeyError)
	if !strings.HasPrefix(text, "diagram has no nodes") {
		t.Errorf("status should start with the error text, got %q", text)
	}
	if !strings.Contains(text, "https://help.example") {
		t.Errorf("status should carry the help link, got %q", text)
	}
}

func TestReport_RecordCarriesDiagnostics(t *testing.T) {
	f := newFixture(t)

	cause := errors.New("viewBox is degenerate")
	f.rep.Report(renderer.NewRenderFailure(renderer.FailureContent, "svg", 300, cause))
	f.rep.Wait()

	records := f.sink.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.SessionID != "sess-1" || r.URL != "https://render.example/embed" || r.Referrer != "https://host.example/page" {
		t.Errorf("unexpected identity fields %+v", r)
	}
	if r.ID == "" || r.Timestamp == "" {
		t.Error("record must carry an ID and timestamp")
	}
	if r.TimeSinceLoad <= 0 {
		t.Errorf("expected positive timeSinceLoad, got %d", r.TimeSinceLoad)
	}
	if r.Stack == "" {
		t.Error("expected the failure's captured stack")
	}
	if !strings.Contains(r.ExceptionDetail, "*renderer.RenderFailure") || !strings.Contains(r.ExceptionDetail, "viewBox is degenerate") {
		t.Errorf("exception detail should list the chain, got %q", r.ExceptionDetail)
	}
	if len(r.ExtensionScripts) != 1 || r.ExtensionScripts[0] != "moz-extension://x/y.js" {
		t.Errorf("unexpected extension inventory %v", r.ExtensionScripts)
	}
	if len(r.Navigations) != 1 || r.Navigations[0].Type != types.NavigationLoad {
		t.Errorf("expected the load navigation, got %+v", r.Navigations)
	}
	if len(r.Logging) != 1 || !strings.Contains(r.Logging[0], "rendering") {
		t.Errorf("expected the buffered log line, got %v", r.Logging)
	}
}

func TestReport_TelemetryCappedStatusNot(t *testing.T) {
	f := newFixture(t)

	for i := range 25 {
		f.rep.Report(errors.New(strings.Repeat("x", i+1)))
	}
	f.rep.Wait()

	if n := len(f.rec.SentOfType(types.StatusError)); n != 25 {
		t.Errorf("every failure must surface a status, got %d", n)
	}
	if n := len(f.sink.Records()); n != DefaultTelemetryCap {
		t.Errorf("expected %d deliveries, got %d", DefaultTelemetryCap, n)
	}
	s := f.metrics.Snapshot()
	if s.TelemetryAttempted != 10 || s.TelemetryDropped != 15 || s.ErrorsReported != 25 {
		t.Errorf("unexpected counters %+v", s)
	}
}

func TestReport_ExtensionErrorsSuppressed(t *testing.T) {
	f := newFixture(t)

	f.rep.Report(extensionError{})
	f.rep.Report(errors.New("failed at safari-extension://abc/inject.js"))
	f.rep.Wait()

	if n := len(f.rec.Sent()); n != 0 {
		t.Errorf("extension errors must not send anything, got %d", n)
	}
	if n := len(f.sink.Records()); n != 0 {
		t.Errorf("extension errors must not reach telemetry, got %d", n)
	}
	if f.rep.Delivered() != 0 {
		t.Error("suppressed errors must not count against the cap")
	}
	if s := f.metrics.Snapshot(); s.ErrorsSuppressed != 2 {
		t.Errorf("ErrorsSuppressed = %d, want 2", s.ErrorsSuppressed)
	}
}

func TestReport_SuppressedWhileUnloading(t *testing.T) {
	f := newFixture(t)

	if err := f.sess.Unload(t.Context()); err != nil {
		t.Fatalf("unload: %v", err)
	}
	f.rep.Report(errors.New("render interrupted"))
	f.rep.Wait()

	if n := len(f.rec.Sent()); n != 0 {
		t.Errorf("expected nothing sent while unloading, got %d", n)
	}
	if n := len(f.sink.Records()); n != 0 {
		t.Errorf("expected no telemetry while unloading, got %d", n)
	}
}

func TestReport_SinkFailureSwallowed(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("connection refused")

	f.rep.Report(errors.New("boom"))
	f.rep.Wait()

	if n := len(f.rec.SentOfType(types.StatusError)); n != 1 {
		t.Errorf("expected status despite sink failure, got %d", n)
	}
	if s := f.metrics.Snapshot(); s.TelemetryFailures != 1 {
		t.Errorf("TelemetryFailures = %d, want 1", s.TelemetryFailures)
	}
}

func TestReport_FailedPublishesUseTheCap(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("connection refused")

	for range DefaultTelemetryCap + 3 {
		f.rep.Report(errors.New("boom"))
	}
	f.rep.Wait()

	if n := len(f.sink.Records()); n != DefaultTelemetryCap {
		t.Errorf("sink saw %d publishes, want %d", n, DefaultTelemetryCap)
	}
	s := f.metrics.Snapshot()
	if s.TelemetryAttempted != int64(DefaultTelemetryCap) || s.TelemetryFailures != int64(DefaultTelemetryCap) || s.TelemetryDropped != 3 {
		t.Errorf("unexpected counters %+v", s)
	}
}

func TestReportFatal(t *testing.T) {
	f := newFixture(t)

	f.rep.ReportFatal(types.Message{Type: types.MessageLoad}, types.ErrMalformedLoad)
	f.rep.Wait()

	if n := len(f.rec.SentOfType(types.StatusFatalError)); n != 1 {
		t.Fatalf("expected fatalError status, got %v", f.rec.Types())
	}
	if records := f.sink.Records(); len(records) != 1 || !records[0].Fatal {
		t.Errorf("expected one fatal record, got %+v", records)
	}
}

func TestReport_NoSink(t *testing.T) {
	rec := channeltest.NewRecorder()
	rep := New(Config{Channel: rec})

	rep.Report(errors.New("boom"))
	rep.Wait()

	if n := len(rec.SentOfType(types.StatusError)); n != 1 {
		t.Errorf("expected status without a sink, got %d", n)
	}
	if err := rep.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestClose_ClosesSink(t *testing.T) {
	f := newFixture(t)
	if err := f.rep.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !f.sink.closed {
		t.Error("expected sink to be closed")
	}
}
