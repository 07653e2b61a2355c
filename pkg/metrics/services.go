package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// initServiceMetrics initializes external service call metrics.
func (m *Manager) initServiceMetrics(cfg Config) {
	m.completionCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_calls_total",
			Help: "Total number of LLM completion calls by purpose and status",
		},
		[]string{"purpose", "status"},
	)

	m.rerankChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rerank_chunks_total",
			Help: "Total number of chunks processed by the reranker",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(m.completionCalls)
	m.registry.MustRegister(m.rerankChunks)
}

// RecordCompletionCall records an LLM call. Purpose is the pipeline use
// ("recontextualize", "decompose", "hyde", "facts", "summary",
// "session_summary"); status is "ok" or "error".
func (m *Manager) RecordCompletionCall(purpose, status string) {
	if !m.enabled {
		return
	}
	m.completionCalls.WithLabelValues(purpose, status).Inc()
}

// RecordRerankChunk records a reranked chunk result: "kept",
// "discarded", or "passthrough".
func (m *Manager) RecordRerankChunk(result string) {
	if !m.enabled {
		return
	}
	m.rerankChunks.WithLabelValues(result).Inc()
}
