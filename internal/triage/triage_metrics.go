package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the interview subsystem.
type Metrics struct {
	SessionsStarted prometheus.Counter
	ActiveSessions  prometheus.Gauge
	QuestionsTotal  prometheus.Counter
	VerdictsTotal   *prometheus.CounterVec
	VerdictIndex    prometheus.Histogram
	BackendCalls    *prometheus.CounterVec
	BackendDuration prometheus.Histogram
	ForwardsTotal   *prometheus.CounterVec
}

// NewMetrics registers and returns interview metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triaged_sessions_started_total",
			Help: "Total interview sessions created.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triaged_active_sessions",
			Help: "Interview sessions currently awaiting an answer.",
		}),
		QuestionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triaged_questions_total",
			Help: "Total follow-up questions returned to patients.",
		}),
		VerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triaged_verdicts_total",
			Help: "Total verdicts by how they were reached.",
		}, []string{"path"}),
		VerdictIndex: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triaged_verdict_emergency_index",
			Help:    "Distribution of verdict emergency indexes.",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 .. 100
		}),
		BackendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triaged_backend_calls_total",
			Help: "Total text backend calls by outcome.",
		}, []string{"outcome"}),
		BackendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triaged_backend_duration_seconds",
			Help:    "Duration of individual backend calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}),
		ForwardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triaged_forwards_total",
			Help: "Verdicts forwarded to the alert store by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.SessionsStarted,
		m.ActiveSessions,
		m.QuestionsTotal,
		m.VerdictsTotal,
		m.VerdictIndex,
		m.BackendCalls,
		m.BackendDuration,
		m.ForwardsTotal,
	)

	return m
}

// Hooks returns an EngineHooks that updates the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnSessionStart: func() {
			m.SessionsStarted.Inc()
			m.ActiveSessions.Inc()
		},
		OnSessionEnd: func() {
			m.ActiveSessions.Dec()
		},
		OnQuestion: func() {
			m.QuestionsTotal.Inc()
		},
		OnBackendCall: func(outcome string, duration float64) {
			m.BackendCalls.WithLabelValues(outcome).Inc()
			m.BackendDuration.Observe(duration)
		},
		OnVerdict: func(path VerdictPath, v Verdict) {
			m.VerdictsTotal.WithLabelValues(string(path)).Inc()
			m.VerdictIndex.Observe(float64(v.EmergencyIndex))
		},
	}
}
