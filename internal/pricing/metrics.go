package pricing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks aggregation cycle health. A nil *Metrics is valid and drops
// every observation, which keeps tests and bare CLI runs registry-free.
type Metrics struct {
	tierHits      *prometheus.CounterVec
	failedSymbols prometheus.Counter
	indexRetries  prometheus.Counter
	cycleDuration prometheus.Histogram
}

// NewMetrics registers the pricing metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tierHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minecalc",
			Subsystem: "pricing",
			Name:      "source_hits_total",
			Help:      "Quotes resolved per source tier.",
		}, []string{"tier"}),
		failedSymbols: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minecalc",
			Subsystem: "pricing",
			Name:      "failed_symbols_total",
			Help:      "Symbols no source tier could price.",
		}),
		indexRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minecalc",
			Subsystem: "pricing",
			Name:      "index_retries_total",
			Help:      "Retry attempts against the batched index source.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "minecalc",
			Subsystem: "pricing",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one aggregation cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
	reg.MustRegister(m.tierHits, m.failedSymbols, m.indexRetries, m.cycleDuration)
	return m
}

func (m *Metrics) TierHit(tier Tier) {
	if m == nil {
		return
	}
	m.tierHits.WithLabelValues(string(tier)).Inc()
}

func (m *Metrics) SymbolFailed() {
	if m == nil {
		return
	}
	m.failedSymbols.Inc()
}

func (m *Metrics) IndexRetry() {
	if m == nil {
		return
	}
	m.indexRetries.Inc()
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}
