package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for presentation verification.
type Metrics struct {
	Verifications       *prometheus.CounterVec
	RemoteLatency       *prometheus.HistogramVec
	MockResults         prometheus.Counter
	CircuitState        prometheus.Gauge
	ActiveVerifications prometheus.Gauge
}

// New registers presentation collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mdlgate_verifications_total",
			Help: "Presentation verifications by outcome (valid or error kind)",
		}, []string{"outcome"}),
		RemoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mdlgate_remote_verifier_latency_seconds",
			Help:    "Latency of remote verifier calls by result",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}),
		MockResults: f.NewCounter(prometheus.CounterOpts{
			Name: "mdlgate_verifications_mock_total",
			Help: "Synthetic results returned in allow_mock mode",
		}),
		CircuitState: f.NewGauge(prometheus.GaugeOpts{
			Name: "mdlgate_remote_verifier_circuit_open",
			Help: "1 while the remote verifier circuit is open",
		}),
		ActiveVerifications: f.NewGauge(prometheus.GaugeOpts{
			Name: "mdlgate_verification_sessions_active",
			Help: "Verification sessions held in the registry",
		}),
	}
}

func (m *Metrics) IncrementVerification(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRemoteLatency(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.RemoteLatency.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) IncrementMock() {
	if m == nil {
		return
	}
	m.MockResults.Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitState.Set(1)
		return
	}
	m.CircuitState.Set(0)
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveVerifications.Set(float64(n))
}
