// Package metrics holds the prometheus collectors of a bridge instance.
// Every method is safe on a nil *Metrics so components can run unmetered.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message results.
const (
	ResultDispatched = "dispatched"
	ResultUnknown    = "unknown"
	ResultMalformed  = "malformed"
	ResultDropped    = "dropped"
)

// Evaluation paths.
const (
	PathDirect   = "direct"
	PathAttached = "attached"
)

// Attachment operations.
const (
	OpAttach = "attach"
	OpDetach = "detach"
)

// Metrics groups the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	messages           *prometheus.CounterVec
	evaluations        *prometheus.CounterVec
	evaluationFailures prometheus.Counter
	attachments        *prometheus.CounterVec
	events             *prometheus.CounterVec
	bindings           prometheus.Gauge
	httpRequests       *prometheus.CounterVec
	httpLatency        prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "webbridge_messages_total", Help: "inbound page messages by result"},
			[]string{"result"},
		),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "webbridge_evaluations_total", Help: "script evaluations by path"},
			[]string{"path"},
		),
		evaluationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "webbridge_evaluation_failures_total", Help: "script evaluations that raised"},
		),
		attachments: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "webbridge_attachments_total", Help: "execution environment attach and detach calls"},
			[]string{"op"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "webbridge_events_emitted_total", Help: "events emitted into the page"},
			[]string{"event"},
		),
		bindings: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "webbridge_bindings", Help: "registered bindings"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "webbridge_http_requests_total", Help: "dev server requests by status code and method"},
			[]string{"code", "method"},
		),
		httpLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "webbridge_http_response_seconds", Help: "dev server response time", Buckets: prometheus.DefBuckets},
		),
	}
	m.registry.MustRegister(
		m.messages,
		m.evaluations,
		m.evaluationFailures,
		m.attachments,
		m.events,
		m.bindings,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Message(result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(result).Inc()
}

func (m *Metrics) Evaluation(path string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(path).Inc()
}

func (m *Metrics) EvaluationFailure() {
	if m == nil {
		return
	}
	m.evaluationFailures.Inc()
}

func (m *Metrics) Attachment(op string) {
	if m == nil {
		return
	}
	m.attachments.WithLabelValues(op).Inc()
}

func (m *Metrics) Event(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

func (m *Metrics) SetBindings(n int) {
	if m == nil {
		return
	}
	m.bindings.Set(float64(n))
}

// HTTPRequest records one dev server response.
func (m *Metrics) HTTPRequest(code, method string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(code, method).Inc()
	m.httpLatency.Observe(seconds)
}

// Bindings returns the registered bindings gauge.
func (m *Metrics) Bindings() prometheus.Gauge {
	return m.bindings
}

// HTTPRequests returns the request counter.
func (m *Metrics) HTTPRequests() *prometheus.CounterVec {
	return m.httpRequests
}

// Collectors exposes the raw collectors for tests and custom exporters.
func (m *Metrics) Collectors() (messages, evaluations *prometheus.CounterVec, failures prometheus.Counter, attachments *prometheus.CounterVec) {
	return m.messages, m.evaluations, m.evaluationFailures, m.attachments
}
