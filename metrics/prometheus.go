package metrics

import "github.com/prometheus/client_golang/prometheus"

// Exporter exposes a Collector's counters to a Prometheus registry.
// Values are read from a fresh Snapshot on every scrape.
type Exporter struct {
	collector *Collector
	counters  []counterDesc
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Snapshot) int64
}

// NewExporter creates an exporter for c.
func NewExporter(c *Collector) *Exporter {
	labels := []string{"transport", "sink"}
	def := func(name, help string, value func(Snapshot) int64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc("framesync_"+name, help, labels, nil),
			value: value,
		}
	}

	return &Exporter{
		collector: c,
		counters: []counterDesc{
			def("loads_total", "Load events accepted.", func(s Snapshot) int64 { return s.LoadsReceived }),
			def("ready_sent_total", "Ready announcements sent.", func(s Snapshot) int64 { return s.ReadySent }),
			def("acks_total", "Host readiness acknowledgments acted on.", func(s Snapshot) int64 { return s.AcksReceived }),
			def("renders_total", "Successful renders.", func(s Snapshot) int64 { return s.Renders }),
			def("render_failures_total", "Failed renders.", func(s Snapshot) int64 { return s.RenderFailures }),
			def("resizes_total", "Resize statuses sent.", func(s Snapshot) int64 { return s.ResizesSent }),
			def("resize_noops_total", "Debounced resizes skipped because the width was unchanged.", func(s Snapshot) int64 { return s.ResizeNoops }),
			def("errors_reported_total", "Error statuses sent to the host.", func(s Snapshot) int64 { return s.ErrorsReported }),
			def("errors_suppressed_total", "Errors suppressed as unload or extension noise.", func(s Snapshot) int64 { return s.ErrorsSuppressed }),
			def("telemetry_attempted_total", "Error records handed to the telemetry sink.", func(s Snapshot) int64 { return s.TelemetryAttempted }),
			def("telemetry_dropped_total", "Error records dropped by the per-session cap.", func(s Snapshot) int64 { return s.TelemetryDropped }),
			def("telemetry_failures_total", "Telemetry deliveries that failed.", func(s Snapshot) int64 { return s.TelemetryFailures }),
			def("invalid_messages_total", "Undecodable incoming messages.", func(s Snapshot) int64 { return s.InvalidMessages }),
		},
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range e.counters {
		ch <- c.desc
	}
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.collector.Snapshot()
	for _, c := range e.counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.value(s)), s.Transport, s.Sink)
	}
}

var _ prometheus.Collector = (*Exporter)(nil)
