package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recall pipeline stage names used as label values.
const (
	StageGate            = "gate"
	StageRecontextualize = "recontextualize"
	StageRewrite         = "rewrite"
	StageRetrieve        = "retrieve"
	StageRerank          = "rerank"
	StageSelect          = "select"
	StageFormat          = "format"
)

// initRecallMetrics initializes recall pipeline metrics.
func (m *Manager) initRecallMetrics(cfg Config) {
	m.recalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recalls_total",
			Help: "Total number of recall requests by outcome",
		},
		[]string{"outcome"},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recall_stage_duration_seconds",
			Help:    "Recall pipeline stage duration in seconds",
			Buckets: cfg.StageDurationBuckets,
		},
		[]string{"stage"},
	)

	m.gateSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_skips_total",
			Help: "Total number of queries declined by the adaptive gate",
		},
	)

	m.chunksServed = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recall_chunks_served",
			Help:    "Number of chunks included per served recall",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	m.registry.MustRegister(m.recalls)
	m.registry.MustRegister(m.stageDuration)
	m.registry.MustRegister(m.gateSkips)
	m.registry.MustRegister(m.chunksServed)
}

// RecordRecall records a recall request outcome: "served", "gated",
// "empty", or "error".
func (m *Manager) RecordRecall(outcome string) {
	if !m.enabled {
		return
	}
	m.recalls.WithLabelValues(outcome).Inc()
}

// RecordStageDuration records how long a recall pipeline stage took.
func (m *Manager) RecordStageDuration(stage string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordGateSkip records a query declined by the adaptive gate.
func (m *Manager) RecordGateSkip() {
	if !m.enabled {
		return
	}
	m.gateSkips.Inc()
}

// RecordChunksServed records the chunk count of a served recall.
func (m *Manager) RecordChunksServed(n int) {
	if !m.enabled {
		return
	}
	m.chunksServed.Observe(float64(n))
}
