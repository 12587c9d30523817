// Package metrics provides per-session counters for the rendering lifecycle.
//
// The Collector is a leaf package with no internal dependencies. All
// increment methods are nil-receiver safe so components can be built
// without metrics.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Lifecycle
	LoadsReceived int64
	ReadySent     int64
	AcksReceived  int64

	// Rendering
	Renders        int64
	RenderFailures int64

	// Resize reactor
	ResizesSent int64
	ResizeNoops int64

	// Error reporting
	ErrorsReported     int64
	ErrorsSuppressed   int64
	TelemetryAttempted int64
	TelemetryDropped   int64
	TelemetryFailures  int64

	// Channel
	InvalidMessages int64

	// Dimensions (informational, set at construction)
	Transport string
	Sink      string
	SessionID string
}

// Collector accumulates counters for one page session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	loadsReceived int64
	readySent     int64
	acksReceived  int64

	renders        int64
	renderFailures int64

	resizesSent int64
	resizeNoops int64

	errorsReported     int64
	errorsSuppressed   int64
	telemetryAttempted int64
	telemetryDropped   int64
	telemetryFailures  int64

	invalidMessages int64

	transport string
	sink      string
	sessionID string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(transport, sink, sessionID string) *Collector {
	return &Collector{
		transport: transport,
		sink:      sink,
		sessionID: sessionID,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Lifecycle ---

// IncLoadReceived records an accepted load event.
func (c *Collector) IncLoadReceived() {
	if c == nil {
		return
	}
	c.inc(&c.loadsReceived)
}

// IncReadySent records a ready announcement.
func (c *Collector) IncReadySent() {
	if c == nil {
		return
	}
	c.inc(&c.readySent)
}

// IncAckReceived records a host readiness acknowledgment that was acted on.
func (c *Collector) IncAckReceived() {
	if c == nil {
		return
	}
	c.inc(&c.acksReceived)
}

// --- Rendering ---

// IncRender records a successful render.
func (c *Collector) IncRender() {
	if c == nil {
		return
	}
	c.inc(&c.renders)
}

// IncRenderFailure records a failed render.
func (c *Collector) IncRenderFailure() {
	if c == nil {
		return
	}
	c.inc(&c.renderFailures)
}

// --- Resize reactor ---

// IncResizeSent records a resize status after a width change.
func (c *Collector) IncResizeSent() {
	if c == nil {
		return
	}
	c.inc(&c.resizesSent)
}

// IncResizeNoop records a debounced firing that found the width unchanged.
func (c *Collector) IncResizeNoop() {
	if c == nil {
		return
	}
	c.inc(&c.resizeNoops)
}

// --- Error reporting ---
// ErrorsReported counts user-visible error statuses. Telemetry counters
// track sink deliveries separately; the per-session cap applies only there.

// IncErrorReported records an error status sent to the host.
func (c *Collector) IncErrorReported() {
	if c == nil {
		return
	}
	c.inc(&c.errorsReported)
}

// IncErrorSuppressed records an error dropped as unload or extension noise.
func (c *Collector) IncErrorSuppressed() {
	if c == nil {
		return
	}
	c.inc(&c.errorsSuppressed)
}

// IncTelemetryAttempted records a record handed to the sink within the cap,
// whether or not the publish later succeeds.
func (c *Collector) IncTelemetryAttempted() {
	if c == nil {
		return
	}
	c.inc(&c.telemetryAttempted)
}

// IncTelemetryDropped records a telemetry record dropped by the cap.
func (c *Collector) IncTelemetryDropped() {
	if c == nil {
		return
	}
	c.inc(&c.telemetryDropped)
}

// IncTelemetryFailure records a sink delivery that failed.
func (c *Collector) IncTelemetryFailure() {
	if c == nil {
		return
	}
	c.inc(&c.telemetryFailures)
}

// --- Channel ---

// IncInvalidMessage records an undecodable incoming message.
func (c *Collector) IncInvalidMessage() {
	if c == nil {
		return
	}
	c.inc(&c.invalidMessages)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		LoadsReceived: c.loadsReceived,
		ReadySent:     c.readySent,
		AcksReceived:  c.acksReceived,

		Renders:        c.renders,
		RenderFailures: c.renderFailures,

		ResizesSent: c.resizesSent,
		ResizeNoops: c.resizeNoops,

		ErrorsReported:     c.errorsReported,
		ErrorsSuppressed:   c.errorsSuppressed,
		TelemetryAttempted: c.telemetryAttempted,
		TelemetryDropped:   c.telemetryDropped,
		TelemetryFailures:  c.telemetryFailures,

		InvalidMessages: c.invalidMessages,

		Transport: c.transport,
		Sink:      c.sink,
		SessionID: c.sessionID,
	}
}
