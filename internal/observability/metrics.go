package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Commands        *prometheus.CounterVec
	CommandLatency  *prometheus.HistogramVec
	UpstreamErrors  *prometheus.CounterVec
	SessionEvents   *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	ScanRequests    *prometheus.CounterVec
	DegradedResults *prometheus.CounterVec
	PeerConnections *prometheus.GaugeVec

	latency *latencyWindow
}

// NewMetrics registers instruments on the default registry. A namespace may
// only be registered once per process.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Inbound commands by action and result.",
		}, []string{"action", "result"}),
		CommandLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_latency_ms",
			Help:      "Command handling latency in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"action"}),
		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "AI API and scanner failures by operation and class.",
		}, []string{"operation", "class"}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of persisted tab sessions after the last cleanup pass.",
		}),
		ScanRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_requests_total",
			Help:      "Page scan requests by result.",
		}, []string{"result"}),
		DegradedResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_results_total",
			Help:      "AI results replaced by a fallback, by operation.",
		}, []string{"operation"}),
		PeerConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_connections",
			Help:      "Connected scanner and popup sockets.",
		}, []string{"peer"}),
		latency: newLatencyWindow(256),
	}
}

// ObserveCommand records one handled command.
func (m *Metrics) ObserveCommand(action, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(action, result).Inc()
	m.CommandLatency.WithLabelValues(action).Observe(float64(d.Milliseconds()))
	m.latency.Observe(action, float64(d.Microseconds())/1000)
	if result != "ok" {
		m.latency.ObserveOutcome(result)
	}
}

func (m *Metrics) ObserveUpstreamError(operation, class string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(operation, class).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveScan(result string) {
	if m == nil {
		return
	}
	m.ScanRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDegraded(operation string) {
	if m == nil {
		return
	}
	m.DegradedResults.WithLabelValues(operation).Inc()
}

func (m *Metrics) PeerConnected(peer string, delta int) {
	if m == nil {
		return
	}
	m.PeerConnections.WithLabelValues(peer).Add(float64(delta))
}

// SnapshotLatency returns rolling per-action latency percentiles.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{Actions: []ActionLatency{}}
	}
	return m.latency.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
