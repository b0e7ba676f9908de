package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/internal/logger"
)

// ErrEmbeddingUnavailable is returned when the configured provider cannot
// produce an embedding. Callers recover via the fallback embedder.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}

// NewEmbedder builds the provider from config. An unconfigured or unknown
// provider yields the deterministic local fallback so indexing and search
// remain structurally functional in degraded mode.
func NewEmbedder(cfg *config.Config) Embedder {
	var primary Embedder

	switch cfg.EmbeddingsProvider {
	case "google", "":
		if cfg.GeminiAPIKey != "" {
			g, err := NewGeminiEmbedder(cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel, cfg.VectorDimensions)
			if err != nil {
				logger.Warn("Gemini embedder init failed, running degraded", "error", err)
			} else {
				primary = g
			}
		}
	case "openai":
		if cfg.OpenAIAPIKey != "" {
			primary = NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingsModel, cfg.VectorDimensions)
		}
	default:
		logger.Warn("Unknown embeddings provider, running degraded", "provider", cfg.EmbeddingsProvider)
	}

	fallback := NewFallbackEmbedder(cfg.VectorDimensions)
	if primary == nil {
		logger.Warn("No embedding provider configured - using local fallback vectors",
			"dimension", cfg.VectorDimensions)
		return fallback
	}

	return &ResilientEmbedder{primary: primary, fallback: fallback}
}

// ResilientEmbedder wraps a real provider and degrades to the local fallback
// on error instead of failing indexing or retrieval.
type ResilientEmbedder struct {
	primary  Embedder
	fallback *FallbackEmbedder
}

func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := r.primary.Embed(ctx, text)
	if err != nil {
		logger.Warn("Embedding degraded to local fallback",
			"provider", r.primary.Name(), "error", err)
		return r.fallback.Embed(ctx, text)
	}
	return vec, nil
}

func (r *ResilientEmbedder) Dimension() int { return r.primary.Dimension() }
func (r *ResilientEmbedder) Name() string  { return r.primary.Name() }

// maxConcurrentEmbeds bounds in-flight provider calls during batch embedding.
const maxConcurrentEmbeds = 10

// BatchResult holds a per-item outcome; one failing text never aborts the batch.
type BatchResult struct {
	Vector []float32
	Err    error
}

// BatchEmbed embeds many texts with bounded concurrency. Results are returned
// in input order regardless of network completion order.
func BatchEmbed(ctx context.Context, e Embedder, texts []string) []BatchResult {
	results := make([]BatchResult, len(texts))
	sem := make(chan struct{}, maxConcurrentEmbeds)

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = BatchResult{Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			vec, err := e.Embed(ctx, text)
			if err != nil {
				results[i] = BatchResult{Err: fmt.Errorf("embed item %d: %w", i, err)}
				return
			}
			results[i] = BatchResult{Vector: vec}
		}(i, text)
	}
	wg.Wait()

	return results
}
