// Package metrics exposes Prometheus collectors for aggregation, provider
// calls, sessions and the remote provider's circuit breaker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/resilience"
	"github.com/sells-group/access-cli/internal/session"
)

const namespace = "access"

// Metrics implements access.Observer and session.Observer.
type Metrics struct {
	aggregations     *prometheus.CounterVec
	aggregateLatency prometheus.Histogram
	infrastructures  prometheus.Histogram
	providerCalls    *prometheus.CounterVec
	providerLatency  prometheus.Histogram
	sessionsActive   prometheus.Gauge
	sessionsEvicted  prometheus.Counter
	breakerState     prometheus.Gauge
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		aggregations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_total",
			Help:      "Multi-criteria aggregations by outcome.",
		}, []string{"status"}),
		aggregateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Wall time of one multi-criteria aggregation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		infrastructures: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_infrastructures",
			Help:      "Infrastructure types per aggregation.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),
		providerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Reachability provider calls by outcome.",
		}, []string{"status"}),
		providerLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Latency of one reachability provider call.",
			Buckets:   prometheus.DefBuckets,
		}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory.",
		}),
		sessionsEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed by the idle sweep.",
		}),
		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_circuit_state",
			Help:      "Remote provider circuit state: 0 closed, 1 open, 2 half-open.",
		}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveAggregate records one aggregation.
func (m *Metrics) ObserveAggregate(infrastructures int, d time.Duration, err error) {
	m.aggregations.WithLabelValues(status(err)).Inc()
	m.aggregateLatency.Observe(d.Seconds())
	m.infrastructures.Observe(float64(infrastructures))
}

// ObserveProviderCall records one reachability call. Infrastructure names
// come from requests, so they are not used as label values.
func (m *Metrics) ObserveProviderCall(_ string, d time.Duration, err error) {
	m.providerCalls.WithLabelValues(status(err)).Inc()
	m.providerLatency.Observe(d.Seconds())
}

// SessionsActive sets the live session count.
func (m *Metrics) SessionsActive(n int) {
	m.sessionsActive.Set(float64(n))
}

// SessionsEvicted counts sessions removed by a sweep.
func (m *Metrics) SessionsEvicted(n int) {
	m.sessionsEvicted.Add(float64(n))
}

// BreakerStateChanged is a resilience.BreakerConfig.OnStateChange hook.
func (m *Metrics) BreakerStateChanged(_, to resilience.State) {
	m.breakerState.Set(float64(to))
}

var (
	_ access.Observer  = (*Metrics)(nil)
	_ session.Observer = (*Metrics)(nil)
)
