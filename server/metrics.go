package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/psiproto/ddh-psi-sum/psi"
)

// Metrics holds the Prometheus collectors the HTTP transport updates as
// sessions progress, the same counters-plus-histograms shape the teacher's
// metrics package registers for its issue/redeem handlers.
type Metrics struct {
	SessionsStarted   *prometheus.CounterVec
	RoundsCompleted   *prometheus.CounterVec
	Errors            *prometheus.CounterVec
	RoundLatency      *prometheus.HistogramVec
	LiveSessionsGauge prometheus.Gauge
}

// NewMetrics constructs and registers the collectors against reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psi_sessions_started_total",
			Help: "Total number of sessions started, labeled by role.",
		}, []string{"role"}),
		RoundsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psi_rounds_completed_total",
			Help: "Total number of protocol rounds completed, labeled by role and round.",
		}, []string{"role", "round"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psi_errors_total",
			Help: "Total number of session-terminating errors, labeled by kind.",
		}, []string{"kind"}),
		RoundLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "psi_round_latency_seconds",
			Help:    "Latency of a single protocol round, labeled by role and round.",
			Buckets: prometheus.DefBuckets,
		}, []string{"role", "round"}),
		LiveSessionsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "psi_live_sessions",
			Help: "Number of sessions currently held in memory awaiting their next round.",
		}),
	}
	reg.MustRegister(
		m.SessionsStarted, m.RoundsCompleted, m.Errors, m.RoundLatency, m.LiveSessionsGauge,
	)
	return m
}

// ObserveError increments the error counter for the Kind carried by err, if
// any; errors not wrapped as *psi.Error are counted under "unknown".
func (m *Metrics) ObserveError(err error) {
	if err == nil {
		return
	}
	for _, k := range []psi.Kind{
		psi.KindInvalidPoint, psi.KindInvalidCiphertext, psi.KindProtocolViolation,
		psi.KindCryptoFailure, psi.KindOverflowRisk,
	} {
		if psi.IsKind(err, k) {
			m.Errors.WithLabelValues(k.String()).Inc()
			return
		}
	}
	m.Errors.WithLabelValues("unknown").Inc()
}
