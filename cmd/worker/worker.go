package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"merchant-docs-rag/internal/ai"
	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/internal/logger"
	"merchant-docs-rag/internal/queue"
	"merchant-docs-rag/internal/telemetry"
	"merchant-docs-rag/internal/vectorstore"
	"merchant-docs-rag/services"
)

// Standalone indexing worker. Runs the same pipeline as the embedded
// worker in the API binary; documents arrive via their spooled files on
// shared storage.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("merchant-docs-rag-worker")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	store, err := vectorstore.NewStore(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal("Failed to initialize vector store:", err)
	}

	embedder := ai.NewEmbedder(cfg)

	var searchCache *services.SearchCache
	if redisClient, err := config.NewRedisClient(cfg); err != nil {
		logger.Warn("Redis cache unavailable for worker", "error", err)
	} else {
		searchCache = services.NewSearchCache(redisClient, cfg.CacheTTL)
	}

	registry := services.NewDocumentRegistry()
	extractor := services.NewExtractor(cfg)
	chunker := services.NewChunker(cfg)
	indexer := services.NewIndexer(extractor, chunker, embedder, store, searchCache, registry)

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(indexer, registry)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("Starting indexing worker",
		"concurrency", cfg.WorkerConcurrency,
		"redis", cfg.RedisAddr(),
		"backend", store.Backend())

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
