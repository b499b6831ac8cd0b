package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for derived credentials.
type Metrics struct {
	Issued        prometheus.Counter
	Disclosures   prometheus.Histogram
	Verifications *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounter(prometheus.CounterOpts{
			Name: "mdlgate_credentials_issued_total",
			Help: "Derived credentials signed",
		}),
		Disclosures: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdlgate_credential_disclosures",
			Help:    "Disclosures per issued credential",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mdlgate_credential_verifications_total",
			Help: "Derived credential verifications by result (valid or error code)",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementIssued(disclosures int) {
	if m == nil {
		return
	}
	m.Issued.Inc()
	m.Disclosures.Observe(float64(disclosures))
}

func (m *Metrics) IncrementVerification(result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
}
