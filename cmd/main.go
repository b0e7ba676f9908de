package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"merchant-docs-rag/internal/ai"
	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/internal/logger"
	"merchant-docs-rag/internal/queue"
	"merchant-docs-rag/internal/telemetry"
	"merchant-docs-rag/internal/vectorstore"
	"merchant-docs-rag/middleware"
	"merchant-docs-rag/models"
	"merchant-docs-rag/routes"
	"merchant-docs-rag/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	// Tracing
	shutdownTracer, err := telemetry.InitTracer("merchant-docs-rag")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}

	// Vector store with fallback chain
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	store, err := vectorstore.NewStore(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal("Failed to initialize vector store:", err)
	}

	// Embeddings
	embedder := ai.NewEmbedder(cfg)

	// Redis: search cache plus task queue. The service runs without it in
	// inline mode for local development.
	var searchCache *services.SearchCache
	var queueClient *queue.Client
	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("Redis unavailable - caching and queueing disabled", "error", err)
	} else {
		searchCache = services.NewSearchCache(redisClient, cfg.CacheTTL)
		queueClient = queue.NewClient(cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB)
		defer queueClient.Close()
	}

	// Core services
	registry := services.NewDocumentRegistry()
	extractor := services.NewExtractor(cfg)
	chunker := services.NewChunker(cfg)
	indexer := services.NewIndexer(extractor, chunker, embedder, store, searchCache, registry)
	retriever := services.NewRetriever(cfg, embedder, store, searchCache)
	reviewer := services.NewQualityReviewer(registry)

	enqueue := buildEnqueue(queueClient, indexer)

	// Embedded worker: this binary also drains the queue, so a single
	// process is fully functional. cmd/worker scales processing out.
	if queueClient != nil {
		go runEmbeddedWorker(cfg, indexer, registry)
	}

	// Reprocessing sweep. The spool path is deterministic, so re-enqueued
	// documents stay processable by out-of-process workers.
	sweeper := services.NewSweepScheduler(reviewer, func(doc *models.Document) error {
		return enqueue(doc, cfg.DocumentSpoolPath(doc.ID))
	})
	if err := sweeper.Start(cfg.SweepCron); err != nil {
		logger.Warn("Reprocess sweep not started", "error", err)
	}
	defer sweeper.Stop()

	// HTTP surface
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.RateLimitMiddleware(redisClient, cfg))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	{
		api.POST("/documents", routes.HandleDocumentUpload(cfg, registry, enqueue))
		api.GET("/documents", routes.ListDocuments(registry))
		api.GET("/documents/:documentID", routes.CheckDocumentStatus(registry))
		api.DELETE("/documents/:documentID", routes.HandleDocumentDelete(registry, indexer))
		api.GET("/search", routes.HandleSearch(retriever))
		api.GET("/quality", routes.HandleQualityReport(reviewer))
		api.GET("/health", routes.HandleHealth(store, embedder))
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "backend", store.Backend())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	logger.Info("Server exited")
}

// buildEnqueue returns the pipeline entry point: queue-backed when Redis
// is up, inline goroutine otherwise.
func buildEnqueue(queueClient *queue.Client, indexer *services.Indexer) routes.EnqueueFunc {
	if queueClient == nil {
		return func(doc *models.Document, _ string) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
				defer cancel()
				_ = indexer.ProcessDocument(ctx, doc)
			}()
			return nil
		}
	}
	return func(doc *models.Document, path string) error {
		return queueClient.EnqueueDocument(queue.DocumentProcessPayload{
			DocumentID: doc.ID,
			Path:       path,
			Name:       doc.Name,
			MimeType:   doc.MimeType,
			Namespace:  doc.Namespace,
			SourceLink: doc.SourceLink,
		})
	}
}

func runEmbeddedWorker(cfg *config.Config, indexer *services.Indexer, registry *services.DocumentRegistry) {
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
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(indexer, registry)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	if err := server.Run(mux); err != nil {
		logger.Error("Embedded worker stopped", "error", err)
	}
}
