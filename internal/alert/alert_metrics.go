package alert

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the alert queue.
type Metrics struct {
	SubmittedTotal  *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	PersistFailures prometheus.Counter
	ClearsTotal     prometheus.Counter
}

// NewMetrics registers and returns alert metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triaged_alerts_submitted_total",
			Help: "Total alerts queued by priority label.",
		}, []string{"priority"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triaged_alert_queue_depth",
			Help: "Alerts currently waiting for acknowledgment.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triaged_alert_persist_failures_total",
			Help: "Durable rewrites of the alert queue that failed.",
		}),
		ClearsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triaged_alert_clears_total",
			Help: "Total queue clears.",
		}),
	}

	reg.MustRegister(
		m.SubmittedTotal,
		m.QueueDepth,
		m.PersistFailures,
		m.ClearsTotal,
	)

	return m
}

// Hooks returns Store hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnSubmit: func(e *Entry) {
			m.SubmittedTotal.WithLabelValues(priorityLabel(e.Priority)).Inc()
		},
		OnClear: func() {
			m.ClearsTotal.Inc()
		},
		OnPersistError: func() {
			m.PersistFailures.Inc()
		},
		OnDepth: func(n int) {
			m.QueueDepth.Set(float64(n))
		},
	}
}

// priorityLabel bounds label cardinality for caller-supplied priorities.
func priorityLabel(p string) string {
	switch p {
	case "low", "medium", "high", "critical", Unknown:
		return p
	default:
		return "other"
	}
}
