package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the issuance flow.
type Metrics struct {
	Authorizations prometheus.Counter
	TokensIssued   prometheus.Counter
	Credentials    prometheus.Counter
	Rejections     *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	SweptSessions  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Authorizations: f.NewCounter(prometheus.CounterOpts{
			Name: "mdlgate_issuance_authorizations_total",
			Help: "Authorization codes issued",
		}),
		TokensIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "mdlgate_issuance_tokens_total",
			Help: "Access tokens issued",
		}),
		Credentials: f.NewCounter(prometheus.CounterOpts{
			Name: "mdlgate_issuance_credentials_total",
			Help: "Credential endpoint successes",
		}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mdlgate_issuance_rejections_total",
			Help: "Issuance requests rejected by step and OAuth error code",
		}, []string{"step", "code"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "mdlgate_issuance_sessions_active",
			Help: "Issuance sessions held in memory",
		}),
		SweptSessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mdlgate_sessions_swept_total",
			Help: "Expired sessions and idle rate limit windows removed by the cleanup worker",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementAuthorizations() {
	if m == nil {
		return
	}
	m.Authorizations.Inc()
}

func (m *Metrics) IncrementTokens() {
	if m == nil {
		return
	}
	m.TokensIssued.Inc()
}

func (m *Metrics) IncrementCredentials() {
	if m == nil {
		return
	}
	m.Credentials.Inc()
}

func (m *Metrics) IncrementRejection(step, code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(step, code).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) AddSwept(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptSessions.WithLabelValues(kind).Add(float64(n))
}
