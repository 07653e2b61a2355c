// Package config provides configuration management for the echomem service.
// It supports loading from YAML/JSON files, environment variable overrides,
// validation, and hot-reloading of selected fields via file watching.
package config

import (
	"time"
)

// Config is the root configuration for the echomem service.
type Config struct {
	App        AppConfig        `koanf:"app" json:"app"`
	Server     ServerConfig     `koanf:"server" json:"server"`
	Log        LogConfig        `koanf:"log" json:"log"`
	Memory     MemoryConfig     `koanf:"memory" json:"memory"`
	Indexer    IndexerConfig    `koanf:"indexer" json:"indexer"`
	Query      QueryConfig      `koanf:"query" json:"query"`
	Rerank     RerankConfig     `koanf:"rerank" json:"rerank"`
	Completion CompletionConfig `koanf:"completion" json:"completion"`
	Embedding  EmbeddingConfig  `koanf:"embedding" json:"embedding"`
	Dense      DenseConfig      `koanf:"dense" json:"dense"`
	Storage    StorageConfig    `koanf:"storage" json:"storage"`
	Metrics    MetricsConfig    `koanf:"metrics" json:"metrics"`
	Tracing    TracingConfig    `koanf:"tracing" json:"tracing"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `koanf:"name" json:"name" validate:"required"`
	Environment string `koanf:"environment" json:"environment" validate:"required,env"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTP HTTPConfig `koanf:"http" json:"http"`
	CORS CORSConfig `koanf:"cors" json:"cors"`
}

// HTTPConfig holds HTTP listener settings.
type HTTPConfig struct {
	Enabled         bool          `koanf:"enabled" json:"enabled"`
	Host            string        `koanf:"host" json:"host" validate:"required"`
	Port            int           `koanf:"port" json:"port" validate:"required,min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" json:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" json:"write_timeout" validate:"min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" json:"idle_timeout" validate:"min=1s"`
	RequestTimeout  time.Duration `koanf:"request_timeout" json:"request_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" validate:"min=1s"`
}

// CORSConfig holds cross-origin resource sharing settings.
type CORSConfig struct {
	Enabled          bool     `koanf:"enabled" json:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins" json:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers" json:"allowed_headers"`
	ExposedHeaders   []string `koanf:"exposed_headers" json:"exposed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials" json:"allow_credentials"`
	MaxAge           int      `koanf:"max_age" json:"max_age" validate:"min=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" validate:"required,oneof=debug info warn error"`
	Format string `koanf:"format" json:"format" validate:"required,oneof=json text"`
	Output string `koanf:"output" json:"output" validate:"required"`
}

// MemoryConfig holds retrieval settings for the hybrid memory index.
type MemoryConfig struct {
	// TopKDense and TopKSparse bound each retrieval arm before fusion.
	TopKDense  int `koanf:"top_k_dense" json:"top_k_dense" validate:"min=1"`
	TopKSparse int `koanf:"top_k_sparse" json:"top_k_sparse" validate:"min=1"`
	// TopKFused is how many fused candidates survive into reranking.
	TopKFused int `koanf:"top_k_fused" json:"top_k_fused" validate:"min=1"`
	// TopKFinal is how many memories a recall serves by default.
	TopKFinal int `koanf:"top_k_final" json:"top_k_final" validate:"min=1"`
	// RRFK is the rank-smoothing constant for reciprocal rank fusion.
	RRFK int `koanf:"rrf_k" json:"rrf_k" validate:"min=1"`
	// TimeDecayFactor controls how slowly scores decay with chunk age.
	// 1.0 disables decay entirely; lower values decay faster.
	TimeDecayFactor float64 `koanf:"time_decay_factor" json:"time_decay_factor" validate:"min=0,max=1"`
	// MMRLambda trades relevance against diversity in final selection.
	MMRLambda float64 `koanf:"mmr_lambda" json:"mmr_lambda" validate:"min=0,max=1"`
	BM25      BM25Config `koanf:"bm25" json:"bm25"`
}

// BM25Config holds the sparse index scoring parameters.
type BM25Config struct {
	K1 float64 `koanf:"k1" json:"k1" validate:"min=0"`
	B  float64 `koanf:"b" json:"b" validate:"min=0,max=1"`
}

// IndexerConfig holds settings for turning conversation turns into chunks.
type IndexerConfig struct {
	ChunkSize    int `koanf:"chunk_size" json:"chunk_size" validate:"min=50"`
	ChunkOverlap int `koanf:"chunk_overlap" json:"chunk_overlap" validate:"min=0"`
	// ContextWindowLines is how many recent transcript lines prefix
	// each contextual chunk.
	ContextWindowLines int `koanf:"context_window_lines" json:"context_window_lines" validate:"min=0"`
	// SessionSummaryMinTurns is the minimum buffered turn count before
	// a session flush produces a summary chunk.
	SessionSummaryMinTurns int `koanf:"session_summary_min_turns" json:"session_summary_min_turns" validate:"min=1"`
}

// QueryConfig toggles the query understanding stages.
type QueryConfig struct {
	Recontextualize bool `koanf:"recontextualize" json:"recontextualize"`
	Decompose       bool `koanf:"decompose" json:"decompose"`
	HyDE            bool `koanf:"hyde" json:"hyde"`
}

// RerankConfig holds cross-encoder reranking settings.
type RerankConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	Endpoint string `koanf:"endpoint" json:"endpoint" validate:"omitempty,url"`
	Model    string `koanf:"model" json:"model"`
	Timeout  time.Duration `koanf:"timeout" json:"timeout" validate:"min=100ms"`
	// MinRelevance discards reranked chunks scoring below this floor.
	MinRelevance float64 `koanf:"min_relevance" json:"min_relevance" validate:"min=0,max=1"`
	// BlendWeight is the share of the cross-encoder score in the final
	// blend; the remainder comes from the retrieval score.
	BlendWeight float64 `koanf:"blend_weight" json:"blend_weight" validate:"min=0,max=1"`
	// Concurrency bounds parallel scoring calls per rerank batch.
	Concurrency int `koanf:"concurrency" json:"concurrency" validate:"min=1"`
}

// CompletionConfig holds LLM completion service settings.
type CompletionConfig struct {
	Endpoint string        `koanf:"endpoint" json:"endpoint" validate:"omitempty,url"`
	APIKey   string        `koanf:"api_key" json:"-"`
	Model    string        `koanf:"model" json:"model"`
	Timeout  time.Duration `koanf:"timeout" json:"timeout" validate:"min=1s"`
	// RequestsPerSecond and Burst bound the outbound call rate.
	RequestsPerSecond float64 `koanf:"requests_per_second" json:"requests_per_second" validate:"min=0"`
	Burst             int     `koanf:"burst" json:"burst" validate:"min=1"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is "hash" (deterministic, local) or "http" (remote model).
	Provider  string        `koanf:"provider" json:"provider" validate:"required,oneof=hash http"`
	Endpoint  string        `koanf:"endpoint" json:"endpoint" validate:"omitempty,url"`
	Model     string        `koanf:"model" json:"model"`
	Dimension int           `koanf:"dimension" json:"dimension" validate:"min=8"`
	Timeout   time.Duration `koanf:"timeout" json:"timeout" validate:"min=1s"`
}

// DenseConfig holds dense vector collection settings.
type DenseConfig struct {
	// Backend is "inproc" (in-process brute force) or "pgvector".
	Backend     string `koanf:"backend" json:"backend" validate:"required,oneof=inproc pgvector"`
	DatabaseURL string `koanf:"database_url" json:"-"`
	Table       string `koanf:"table" json:"table"`
	// CachePath, when set with the inproc backend, persists vectors to
	// a file on shutdown and reloads them at startup so the rebuild
	// does not re-embed every stored chunk.
	CachePath string `koanf:"cache_path" json:"cache_path"`
}

// StorageConfig holds chunk store settings.
type StorageConfig struct {
	// Backend is "memory", "badger", or "redis".
	Backend string       `koanf:"backend" json:"backend" validate:"required,oneof=memory badger redis"`
	Badger  BadgerConfig `koanf:"badger" json:"badger"`
	Redis   RedisConfig  `koanf:"redis" json:"redis"`
}

// BadgerConfig holds embedded key-value store settings.
type BadgerConfig struct {
	Dir        string `koanf:"dir" json:"dir"`
	InMemory   bool   `koanf:"in_memory" json:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes" json:"sync_writes"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr"`
	Password string `koanf:"password" json:"-"`
	DB       int    `koanf:"db" json:"db" validate:"min=0"`
	// KeyPrefix namespaces all chunk keys.
	KeyPrefix string `koanf:"key_prefix" json:"key_prefix"`
}

// MetricsConfig holds Prometheus metrics settings. Metrics are served
// on their own port, separate from the API listener.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	Port    int    `koanf:"port" json:"port" validate:"min=0,max=65535"`
	Path    string `koanf:"path" json:"path"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled    bool              `koanf:"enabled" json:"enabled"`
	Exporter   string            `koanf:"exporter" json:"exporter"`
	Endpoint   string            `koanf:"endpoint" json:"endpoint"`
	Timeout    time.Duration     `koanf:"timeout" json:"timeout"`
	Sampler    string            `koanf:"sampler" json:"sampler"`
	SampleRate float64           `koanf:"sample_rate" json:"sample_rate" validate:"min=0,max=1"`
	Headers    map[string]string `koanf:"headers" json:"headers"`
}
