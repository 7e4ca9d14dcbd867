package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics exposes counters/histograms for interview flows.
type SessionMetrics struct {
	turnsTotal   *prometheus.CounterVec
	turnLatency  *prometheus.HistogramVec
	uploadsTotal *prometheus.CounterVec
}

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legalintake",
			Subsystem: "session",
			Name:      "turns_total",
			Help:      "Total conversational turns by routed action",
		}, []string{"route", "status"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "legalintake",
			Subsystem: "session",
			Name:      "turn_latency_seconds",
			Help:      "End to end latency of one conversational turn",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"route"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "legalintake",
			Subsystem: "session",
			Name:      "uploads_total",
			Help:      "Total uploaded files by outcome",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.uploadsTotal)
	return m
}

func (m *SessionMetrics) ObserveTurn(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(route, status).Inc()
	m.turnLatency.WithLabelValues(route).Observe(seconds)
}

func (m *SessionMetrics) ObserveUpload(status string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(status).Inc()
}
