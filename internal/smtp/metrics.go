package smtp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus instrumentation a Server reports through.
// Unlike an application's global counters, each Metrics owns a private
// registry: an embedded library must not fight the host process over
// prometheus's default registry, so the host collects it explicitly via
// Collector.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive    prometheus.Gauge
	connectionsTotal  prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	commandsTotal     *prometheus.CounterVec
	transactionsTotal *prometheus.CounterVec
	messageSizeBytes  prometheus.Histogram
}

// NewMetrics builds a Metrics with its own registry. namespace prefixes
// every metric name; an empty namespace yields "smtp_..." names.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "smtp"
	}
	reg := prometheus.NewRegistry()
	fac := promauto.With(reg)

	return &Metrics{
		registry: reg,

		sessionsActive: fac.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of SMTP sessions currently open.",
		}),
		connectionsTotal: fac.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total accepted TCP connections.",
		}),
		connectionsRejected: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections rejected before a session was created, by reason.",
		}, []string{"reason"}),
		commandsTotal: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands processed, by verb and resulting status code.",
		}, []string{"verb", "code"}),
		transactionsTotal: fac.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Completed mail transactions, by outcome.",
		}, []string{"outcome"}),
		messageSizeBytes: fac.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_size_bytes",
			Help:      "Size of accepted DATA bodies in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}
}

// Collector exposes the underlying registry so a host process can merge it
// into its own /metrics endpoint, e.g. via promhttp.HandlerFor.
func (m *Metrics) Collector() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) sessionOpened() {
	m.sessionsActive.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) sessionClosed() {
	m.sessionsActive.Dec()
}

func (m *Metrics) connectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) command(verb string, code int) {
	m.commandsTotal.WithLabelValues(verb, formatCode(code)).Inc()
}

func (m *Metrics) transaction(outcome string, size int) {
	m.transactionsTotal.WithLabelValues(outcome).Inc()
	if size > 0 {
		m.messageSizeBytes.Observe(float64(size))
	}
}

func formatCode(code int) string {
	digits := [3]byte{}
	digits[0] = byte('0' + code/100)
	digits[1] = byte('0' + (code/10)%10)
	digits[2] = byte('0' + code%10)
	return string(digits[:])
}
