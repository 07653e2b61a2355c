package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echomem/echomem/config"
	"github.com/echomem/echomem/pkg/api"
	"github.com/echomem/echomem/pkg/api/handlers"
	"github.com/echomem/echomem/pkg/completion"
	"github.com/echomem/echomem/pkg/embedding"
	"github.com/echomem/echomem/pkg/indexer"
	"github.com/echomem/echomem/pkg/logger"
	mem "github.com/echomem/echomem/pkg/memory"
	"github.com/echomem/echomem/pkg/metrics"
	"github.com/echomem/echomem/pkg/pipeline"
	"github.com/echomem/echomem/pkg/queryproc"
	"github.com/echomem/echomem/pkg/rerank"
	badgerstore "github.com/echomem/echomem/pkg/storage/badger"
	memstore "github.com/echomem/echomem/pkg/storage/memory"
	redisstore "github.com/echomem/echomem/pkg/storage/redis"
	"github.com/echomem/echomem/pkg/telemetry/tracing"
	"github.com/echomem/echomem/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg)

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting echomem",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Tracing
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
		if err != nil {
			log.Error("Failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error("Error shutting down tracing", "error", err)
			}
		}()
	}

	// Embedder
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		log.Error("Failed to create embedder", "error", err)
		os.Exit(1)
	}
	log.Info("Initialized embedder", "provider", cfg.Embedding.Provider, "dimension", cfg.Embedding.Dimension)

	// Chunk store backend
	var store mem.ChunkStore
	switch cfg.Storage.Backend {
	case "badger":
		store, err = badgerstore.NewStore(cfg.Storage.Badger)
		if err != nil {
			log.Error("Failed to open Badger store", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized Badger chunk store", "dir", cfg.Storage.Badger.Dir, "in_memory", cfg.Storage.Badger.InMemory)
	case "redis":
		store, err = redisstore.NewStore(ctx, cfg.Storage.Redis)
		if err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized Redis chunk store", "addr", cfg.Storage.Redis.Addr)
	default:
		store = memstore.NewStore()
		log.Info("Initialized in-memory chunk store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing chunk store", "error", err)
		}
	}()

	// Dense vector collection
	var dense mem.DenseCollection
	switch cfg.Dense.Backend {
	case "pgvector":
		dense, err = mem.NewPgvectorCollection(ctx, cfg.Dense.DatabaseURL, cfg.Dense.Table, embedder)
		if err != nil {
			log.Error("Failed to connect to pgvector", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized pgvector dense collection", "table", cfg.Dense.Table)
	default:
		inproc := mem.NewInprocCollection(embedder)
		if cfg.Dense.CachePath != "" {
			if err := inproc.Load(cfg.Dense.CachePath); err != nil {
				log.Warn("Vector cache not loaded; rebuild will re-embed", "path", cfg.Dense.CachePath, "error", err)
			} else {
				log.Info("Loaded vector cache", "path", cfg.Dense.CachePath)
			}
			defer func() {
				if err := inproc.Save(cfg.Dense.CachePath); err != nil {
					log.Error("Failed to save vector cache", "path", cfg.Dense.CachePath, "error", err)
				}
			}()
		}
		dense = inproc
		log.Info("Initialized in-process dense collection")
	}
	defer func() {
		if err := dense.Close(); err != nil {
			log.Error("Error closing dense collection", "error", err)
		}
	}()

	// Metrics
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)

	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Completion service, shared by the indexer and query processor.
	var completions completion.Service
	if cfg.Completion.Endpoint != "" {
		svc, err := completion.NewHTTPService(cfg.Completion)
		if err != nil {
			log.Error("Failed to create completion service", "error", err)
			os.Exit(1)
		}
		completions = svc
		log.Info("Initialized completion service", "model", cfg.Completion.Model)
	} else {
		log.Warn("No completion endpoint configured; enrichment and query rewriting disabled")
	}

	// Core pipeline
	retriever := mem.NewRetriever(cfg.Memory, dense, store, log)
	if n, err := retriever.Rebuild(ctx); err != nil {
		log.Error("Failed to rebuild indexes from store", "error", err)
		os.Exit(1)
	} else if n > 0 {
		log.Info("Rebuilt search indexes from chunk store", "chunks", n)
	}

	ix := indexer.New(cfg.Indexer, completions, log, metricsManager)
	qp := queryproc.New(cfg.Query, completions, log, metricsManager)

	var scorer rerank.Scorer
	if cfg.Rerank.Enabled {
		scorer = rerank.NewHTTPScorer(cfg.Rerank)
	}
	reranker := rerank.New(cfg.Rerank, scorer, log, metricsManager)

	pipe := pipeline.New(cfg, ix, retriever, qp, reranker, log, metricsManager)

	// Config hot-reload
	if *configPath != "" {
		watcher, err := config.NewWatcher(config.NewLoader(*configPath), cfg)
		if err != nil {
			log.Error("Failed to create config watcher", "error", err)
		} else {
			watcher.OnChange(func(old, new *config.Config) {
				hot := config.ExtractHotReloadable(new)
				log.SetLevel(logger.ParseLevel(hot.LogLevel))
				retriever.SetDecayFactor(hot.TimeDecayFactor)
				pipe.SetMMRLambda(hot.MMRLambda)
				reranker.SetFloor(hot.RerankFloor)
				reranker.SetBlendWeight(hot.RerankBlend)
				qp.SetStages(hot.Recontextualize, hot.Decompose, hot.HyDE)
				log.Info("Applied hot-reloaded configuration")
			})
			if err := watcher.Start(); err != nil {
				log.Error("Failed to start config watcher", "error", err)
			} else {
				defer watcher.Stop()
			}
		}
	}

	// HTTP server
	apiHandlers := &api.Handlers{
		Memory:  handlers.NewMemoryHandler(pipe, log),
		Health:  handlers.NewHealthHandler(nil),
		Metrics: metricsManager,
	}
	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("echomem is running",
		"http_port", cfg.Server.HTTP.Port,
		"metrics_port", cfg.Metrics.Port,
		"session", pipe.SessionID(),
	)

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	// Flush the open session so its summary survives the restart.
	if err := pipe.FlushSession(shutdownCtx); err != nil {
		log.Error("Error flushing session on shutdown", "error", err)
	}

	log.Info("echomem stopped gracefully")
}

func applyOverrides(cfg *config.Config) {
	if *serverPort != 0 {
		cfg.Server.HTTP.Port = *serverPort
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
}

func printVersion() {
	fmt.Printf("echomem - Long-term memory engine for conversational agents\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("echomem - Long-term memory engine for conversational agents\n\n")
	fmt.Printf("Usage: echomem [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  echomem                                   # Run with default config\n")
	fmt.Printf("  echomem -config config.yaml               # Use specific config file\n")
	fmt.Printf("  echomem -port 9090 -log-level debug       # Override specific options\n")
	fmt.Printf("  echomem -version                          # Print version info\n")
}
