// Package metrics exposes Prometheus metrics for the dialectic pipeline.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	EventsTotal             *prometheus.CounterVec
	AgentsSpawnedTotal      *prometheus.CounterVec
	GenerationFallbacks     *prometheus.CounterVec
	RecommendationsTotal    *prometheus.CounterVec
	LearningPersistDuration prometheus.Histogram
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// New returns the process-wide metrics, registering them on the default registry
// the first time it is called.
func New() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			EventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dialectic_events_total",
					Help: "Events learned from, by outcome",
				},
				[]string{"outcome"},
			),
			AgentsSpawnedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dialectic_agents_spawned_total",
					Help: "Agent specs generated, by agent type",
				},
				[]string{"agent_type"},
			),
			GenerationFallbacks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dialectic_generation_fallbacks_total",
					Help: "Adaptive generations that fell back to the deterministic catalog",
				},
				[]string{"reason"},
			),
			RecommendationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dialectic_recommendations_total",
					Help: "Recommendation queries, by whether any agent was recommended",
				},
				[]string{"hit"},
			),
			LearningPersistDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "dialectic_learning_persist_seconds",
					Help:    "Time spent persisting learning state",
					Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
				},
			),
		}
	})
	return sharedMetrics
}

// ObserveEvent counts one learned event.
func (m *Metrics) ObserveEvent(outcome string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSpawn counts one generated agent spec.
func (m *Metrics) ObserveSpawn(agentType string) {
	if m == nil {
		return
	}
	m.AgentsSpawnedTotal.WithLabelValues(agentType).Inc()
}

// ObserveFallback counts one adaptive fallback.
func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.GenerationFallbacks.WithLabelValues(reason).Inc()
}

// ObserveRecommendation counts one recommendation query.
func (m *Metrics) ObserveRecommendation(hit bool) {
	if m == nil {
		return
	}
	m.RecommendationsTotal.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

// ObservePersist records how long a save took.
func (m *Metrics) ObservePersist(d time.Duration) {
	if m == nil {
		return
	}
	m.LearningPersistDuration.Observe(d.Seconds())
}
