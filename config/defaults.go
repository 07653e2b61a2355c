package config

import "time"

// DefaultConfig returns a configuration with sensible defaults.
// These values are used when no configuration file is provided or when
// specific fields are not set.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "echomem",
			Environment: "development",
		},
		Server: ServerConfig{
			HTTP: HTTPConfig{
				Enabled:         true,
				Host:            "0.0.0.0",
				Port:            8080,
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				RequestTimeout:  60 * time.Second,
				ShutdownTimeout: 30 * time.Second,
			},
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
				MaxAge:         300,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Memory: MemoryConfig{
			TopKDense:       20,
			TopKSparse:      20,
			TopKFused:       15,
			TopKFinal:       5,
			RRFK:            60,
			TimeDecayFactor: 0.95,
			MMRLambda:       0.7,
			BM25: BM25Config{
				K1: 1.5,
				B:  0.75,
			},
		},
		Indexer: IndexerConfig{
			ChunkSize:              400,
			ChunkOverlap:           80,
			ContextWindowLines:     6,
			SessionSummaryMinTurns: 3,
		},
		Query: QueryConfig{
			Recontextualize: true,
			Decompose:       false,
			HyDE:            false,
		},
		Rerank: RerankConfig{
			Enabled:      true,
			Timeout:      5 * time.Second,
			MinRelevance: 0.15,
			BlendWeight:  0.6,
			Concurrency:  4,
		},
		Completion: CompletionConfig{
			Model:             "gpt-4o-mini",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Dimension: 256,
			Timeout:   10 * time.Second,
		},
		Dense: DenseConfig{
			Backend: "inproc",
			Table:   "memory_chunks",
		},
		Storage: StorageConfig{
			Backend: "memory",
			Badger: BadgerConfig{
				Dir:        "./data/echomem",
				SyncWrites: false,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				DB:        0,
				KeyPrefix: "echomem:",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlpgrpc",
			Endpoint:   "localhost:4317",
			Timeout:    10 * time.Second,
			Sampler:    "parentbased_traceidratio",
			SampleRate: 1.0,
		},
	}
}
