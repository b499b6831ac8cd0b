package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the trust store.
type Metrics struct {
	Refreshes        *prometheus.CounterVec
	RefreshDuration  prometheus.Histogram
	StaleFallbacks   prometheus.Counter
	CacheAgeSeconds  prometheus.Gauge
	RootsUnavailable prometheus.Gauge
	IssuerDecisions  *prometheus.CounterVec
	InvalidRecords   prometheus.Counter
}

// New registers trust collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mdlgate_trust_refreshes_total",
			Help: "Trust list refresh attempts by result",
		}, []string{"result"}),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mdlgate_trust_refresh_duration_seconds",
			Help:    "Duration of trust list refreshes including root downloads",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		StaleFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "mdlgate_trust_stale_fallbacks_total",
			Help: "Times a stale trust cache was served because refresh failed",
		}),
		CacheAgeSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "mdlgate_trust_cache_age_seconds",
			Help: "Age of the trust snapshot served most recently",
		}),
		RootsUnavailable: f.NewGauge(prometheus.GaugeOpts{
			Name: "mdlgate_trust_roots_unavailable",
			Help: "Accepted jurisdictions whose root certificate is unavailable",
		}),
		IssuerDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mdlgate_trust_issuer_decisions_total",
			Help: "Issuer pinning decisions by reason",
		}, []string{"reason"}),
		InvalidRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "mdlgate_trust_invalid_records_total",
			Help: "Trust records rejected on load",
		}),
	}
}

func (m *Metrics) IncrementRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRefreshDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(d.Seconds())
}

func (m *Metrics) IncrementStaleFallback() {
	if m == nil {
		return
	}
	m.StaleFallbacks.Inc()
}

func (m *Metrics) SetCacheAge(age time.Duration) {
	if m == nil {
		return
	}
	m.CacheAgeSeconds.Set(age.Seconds())
}

func (m *Metrics) SetRootsUnavailable(n int) {
	if m == nil {
		return
	}
	m.RootsUnavailable.Set(float64(n))
}

func (m *Metrics) IncrementIssuerDecision(reason string) {
	if m == nil {
		return
	}
	m.IssuerDecisions.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementInvalidRecord() {
	if m == nil {
		return
	}
	m.InvalidRecords.Inc()
}
