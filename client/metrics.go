package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the client's Prometheus instruments. All methods on a
// nil *Metrics are no-ops so instrumentation stays optional.
type Metrics struct {
	reconnects  prometheus.Counter
	retries     prometheus.Counter
	calls       *prometheus.CounterVec
	callSeconds prometheus.Histogram
}

// NewMetrics builds the client instruments and registers them on reg.
// Pass prometheus.DefaultRegisterer to use the process-wide registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termbridge_reconnects_total",
			Help: "Number of physical reconnects to the terminal bridge.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "termbridge_retries_total",
			Help: "Number of attempts retried after a transient failure.",
		}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "termbridge_calls_total",
			Help: "Unary calls by terminal outcome.",
		}, []string{"outcome"}),
		callSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "termbridge_call_duration_seconds",
			Help:    "End-to-end unary call latency including retries.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.reconnects, m.retries, m.calls, m.callSeconds)
	return m
}

func (m *Metrics) reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) retry() {
	if m != nil {
		m.retries.Inc()
	}
}

// call records one finished unary call. outcome is one of:
// ok | fatal | timeout | cancelled.
func (m *Metrics) call(outcome string, seconds float64) {
	if m != nil {
		m.calls.WithLabelValues(outcome).Inc()
		m.callSeconds.Observe(seconds)
	}
}
