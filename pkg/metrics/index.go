package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// initIndexMetrics initializes indexing metrics.
func (m *Manager) initIndexMetrics(cfg Config) {
	m.indexedChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexed_chunks_total",
			Help: "Total number of chunks written to the index by chunk type",
		},
		[]string{"type"},
	)

	m.sessionFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_flushes_total",
			Help: "Total number of session flushes by result",
		},
		[]string{"result"},
	)

	m.indexSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "index_size",
			Help: "Current number of entries per index component",
		},
		[]string{"component"},
	)

	m.registry.MustRegister(m.indexedChunks)
	m.registry.MustRegister(m.sessionFlushes)
	m.registry.MustRegister(m.indexSize)
}

// RecordIndexedChunk records a chunk written to the index.
func (m *Manager) RecordIndexedChunk(chunkType string) {
	if !m.enabled {
		return
	}
	m.indexedChunks.WithLabelValues(chunkType).Inc()
}

// RecordSessionFlush records a session flush: "summarized", "skipped",
// or "error".
func (m *Manager) RecordSessionFlush(result string) {
	if !m.enabled {
		return
	}
	m.sessionFlushes.WithLabelValues(result).Inc()
}

// SetIndexSize sets the size gauge for an index component
// (e.g. "chunks", "dense", "sparse", "sessions").
func (m *Manager) SetIndexSize(component string, size int) {
	if !m.enabled {
		return
	}
	m.indexSize.WithLabelValues(component).Set(float64(size))
}
