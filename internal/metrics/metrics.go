package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "prospect"

// Metrics holds the enrichment collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts     *prometheus.CounterVec
	results      *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	poolKeys     *prometheus.GaugeVec
	cacheLookups *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_attempts_total",
			Help:      "Provider attempts made by the rotation loop, by outcome.",
		}, []string{"category", "outcome"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_results_total",
			Help:      "Terminal enrichment results, by error kind.",
		}, []string{"category", "kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_key_transitions_total",
			Help:      "Keys retired by the rotation loop, by new status.",
		}, []string{"category", "status"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Latency of provider calls, by HTTP status.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"status"}),
		poolKeys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_keys",
			Help:      "Keys in the pool, by category and state.",
		}, []string{"category", "state"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_cache_lookups_total",
			Help:      "Enrichment cache lookups, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.attempts, m.results, m.transitions, m.callDuration, m.poolKeys, m.cacheLookups)
	return m
}

func (m *Metrics) Attempt(category, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) Result(category, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "SUCCESS"
	}
	m.results.WithLabelValues(category, kind).Inc()
}

func (m *Metrics) KeyTransition(category, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(category, status).Inc()
}

// ProviderCall observes one call. status is "transport_error" when no HTTP response arrived.
func (m *Metrics) ProviderCall(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.callDuration.WithLabelValues(status).Observe(d.Seconds())
}

// SetPoolKeys replaces the pool gauge. Keys of counts are category then state.
func (m *Metrics) SetPoolKeys(counts map[string]map[string]float64) {
	if m == nil {
		return
	}
	m.poolKeys.Reset()
	for category, states := range counts {
		for state, n := range states {
			m.poolKeys.WithLabelValues(category, state).Set(n)
		}
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
