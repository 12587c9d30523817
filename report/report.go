// Package report turns lifecycle and render failures into user-visible
// error statuses and best-effort telemetry.
//
// Every reported failure produces an error status on the channel unless it
// is suppressed as noise (page unloading, or attributable to a browser
// extension). Telemetry is capped per session; once the cap is reached,
// failures still produce their status but are no longer delivered.
package report

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/framesync/adapter"
	"github.com/pithecene-io/framesync/channel"
	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/metrics"
	"github.com/pithecene-io/framesync/session"
	"github.com/pithecene-io/framesync/types"
)

// DefaultHelpURL is appended to every user-visible error.
const DefaultHelpURL = "https://github.com/pithecene-io/framesync/issues"

// DefaultTelemetryCap is the maximum number of records delivered per session.
const DefaultTelemetryCap = 10

// DefaultDeliveryTimeout bounds a single sink delivery.
const DefaultDeliveryTimeout = 10 * time.Second

// StackTracer is implemented by errors that carry the stack of their origin.
type StackTracer interface {
	StackTrace() string
}

// Config configures a Reporter.
type Config struct {
	Channel channel.Channel
	Session *session.Session
	// Sink receives telemetry. Nil disables telemetry.
	Sink    adapter.Adapter
	HelpURL string
	// Cap is the per-session telemetry limit (default 10).
	Cap     int
	Timeout time.Duration
	Metrics *metrics.Collector
	Logger  *log.Logger
}

// Reporter formats, suppresses, caps and forwards failures.
type Reporter struct {
	ch      channel.Channel
	session *session.Session
	sink    adapter.Adapter
	helpURL string
	cap     int
	timeout time.Duration
	metrics *metrics.Collector
	logger  *log.Logger

	mu        sync.Mutex
	delivered int

	inflight sync.WaitGroup
}

// New creates a Reporter.
func New(cfg Config) *Reporter {
	helpURL := cfg.HelpURL
	if helpURL == "" {
		helpURL = DefaultHelpURL
	}
	limit := cfg.Cap
	if limit <= 0 {
		limit = DefaultTelemetryCap
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	sess := cfg.Session
	if sess == nil {
		sess = session.New(session.Config{})
	}
	return &Reporter{
		ch:      cfg.Channel,
		session: sess,
		sink:    cfg.Sink,
		helpURL: helpURL,
		cap:     limit,
		timeout: timeout,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Report sends an error status for err and forwards it to telemetry.
// It never retries anything.
func (r *Reporter) Report(err error) {
	r.report(types.StatusError, err)
}

// ReportFatal reports a fault that escaped a message handler. Its
// signature matches channel.Bus.OnUnhandled.
func (r *Reporter) ReportFatal(m types.Message, err error) {
	r.logger.Error("unhandled fault", map[string]any{"type": string(m.Type), "error": err.Error()})
	r.report(types.StatusFatalError, err)
}

// Format combines the error text with the help link.
func (r *Reporter) Format(err error) string {
	return fmt.Sprintf("%s\n\nIf this persists, please report it at %s", err.Error(), r.helpURL)
}

// Delivered returns the number of records handed to the sink so far.
func (r *Reporter) Delivered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delivered
}

// Wait blocks until in-flight deliveries finish.
func (r *Reporter) Wait() {
	r.inflight.Wait()
}

// Close waits for in-flight deliveries and closes the sink.
func (r *Reporter) Close() error {
	r.Wait()
	if r.sink == nil {
		return nil
	}
	return r.sink.Close()
}

func (r *Reporter) report(status types.MessageType, err error) {
	if err == nil {
		return
	}
	stack := stackOf(err)

	if r.suppressed(err, stack) {
		r.metrics.IncErrorSuppressed()
		r.logger.Debug("error suppressed", map[string]any{"error": err.Error()})
		return
	}

	r.metrics.IncErrorReported()
	if r.ch != nil {
		r.ch.Send(status, types.ErrorPayload(r.Format(err)))
	}

	if r.sink == nil || !r.reserve() {
		return
	}
	record := r.record(err, stack, status == types.StatusFatalError)
	r.metrics.IncTelemetryAttempted()

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if perr := r.sink.Publish(ctx, record); perr != nil {
			r.metrics.IncTelemetryFailure()
			r.logger.Debug("telemetry delivery failed", map[string]any{"error": perr.Error(), "record": record.ID})
		}
	}()
}

// suppressed reports whether err is unload or extension noise.
func (r *Reporter) suppressed(err error, stack string) bool {
	if r.session.Unloading() {
		return true
	}
	return session.IsExtensionURL(stack) || session.IsExtensionURL(err.Error())
}

// reserve claims a telemetry slot, returning false once the cap is reached.
func (r *Reporter) reserve() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.delivered >= r.cap {
		r.metrics.IncTelemetryDropped()
		return false
	}
	r.delivered++
	return true
}

func (r *Reporter) record(err error, stack string, fatal bool) *adapter.ErrorRecord {
	meta := r.session.Meta()
	navs, nerr := r.session.NavLog().Entries(context.Background())
	if nerr != nil {
		r.logger.Debug("navigation log unavailable", map[string]any{"error": nerr.Error()})
	}
	return &adapter.ErrorRecord{
		ID:               uuid.NewString(),
		SessionID:        meta.SessionID,
		Message:          err.Error(),
		Stack:            stack,
		ExceptionDetail:  exceptionDetail(err),
		Fatal:            fatal,
		URL:              meta.URL,
		Referrer:         meta.Referrer,
		Timestamp:        r.session.Now().UTC().Format(time.RFC3339Nano),
		TimeSinceLoad:    r.session.SinceLoad().Milliseconds(),
		ExtensionScripts: r.session.ExtensionScripts(),
		Navigations:      navs,
		Logging:          r.session.DebugBuffer().Lines(),
	}
}

func stackOf(err error) string {
	var st StackTracer
	if errors.As(err, &st) {
		return st.StackTrace()
	}
	return string(debug.Stack())
}

// exceptionDetail lists the error chain outermost first as "type: text".
func exceptionDetail(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		if b.Len() > 0 {
			b.WriteString("\ncaused by ")
		}
		fmt.Fprintf(&b, "%T: %s", e, e.Error())
	}
	return b.String()
}
