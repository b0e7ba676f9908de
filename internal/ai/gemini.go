package ai

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// GeminiEmbedder produces embeddings via Google Generative AI
// (text-embedding-004 by default, 768 dimensions).
type GeminiEmbedder struct {
	client      *genai.Client
	model       string
	dimension   int
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

func NewGeminiEmbedder(apiKey, model string, dimension int) (*GeminiEmbedder, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiEmbeddings",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// Free-tier embedding RPM with a safety buffer
	rateLimiter := rate.NewLimiter(rate.Limit(100.0*0.9/60.0), 10)

	return &GeminiEmbedder{
		client:      client,
		model:       model,
		dimension:   dimension,
		breaker:     breaker,
		rateLimiter: rateLimiter,
	}, nil
}

func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	tracer := otel.Tracer("embeddings")
	ctx, span := tracer.Start(ctx, "gemini.embed_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("embeddings.model", g.model),
		attribute.Int("embeddings.input_chars", len(text)),
	)

	if err := g.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.EmbeddingModel(g.model)
		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return nil, fmt.Errorf("no embedding returned")
		}
		return resp.Embedding.Values, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("embeddings.failed", true))
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	vec := result.([]float32)
	if g.dimension > 0 && len(vec) != g.dimension {
		return nil, fmt.Errorf("embedding dimension %d does not match configured %d", len(vec), g.dimension)
	}

	return vec, nil
}

func (g *GeminiEmbedder) Dimension() int { return g.dimension }
func (g *GeminiEmbedder) Name() string   { return "gemini/" + g.model }
