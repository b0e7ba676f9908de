package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"merchant-docs-rag/internal/ai"
	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/internal/logger"
	"merchant-docs-rag/internal/vectorstore"
	"merchant-docs-rag/models"
)

const defaultTopK = 5

// Retriever answers queries against the vector store. The query text is
// embedded exactly once and fanned out across the requested namespaces;
// results are merged, deduplicated, and ranked by score. When the vector
// path yields nothing, a keyword search runs as a last resort so callers
// always get a ranked list rather than an error.
type Retriever struct {
	embedder  ai.Embedder
	store     vectorstore.VectorStore
	cache     *SearchCache
	threshold float64
}

func NewRetriever(cfg *config.Config, embedder ai.Embedder, store vectorstore.VectorStore, cache *SearchCache) *Retriever {
	return &Retriever{
		embedder:  embedder,
		store:     store,
		cache:     cache,
		threshold: cfg.SearchThreshold,
	}
}

// Query runs retrieval across one or more namespaces. An empty namespace
// list searches the default (unscoped) namespace. An empty result set is
// a valid answer, never an error.
func (r *Retriever) Query(ctx context.Context, query string, namespaces []string, topK int) ([]models.SearchResult, error) {
	tracer := otel.Tracer("retrieval")
	ctx, span := tracer.Start(ctx, "retrieval.query")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SearchResult{}, nil
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if len(namespaces) == 0 {
		namespaces = []string{""}
	}

	span.SetAttributes(
		attribute.Int("query.top_k", topK),
		attribute.Int("query.namespaces", len(namespaces)),
	)

	cacheScope := strings.Join(namespaces, ",")
	if cached := r.cache.Get(ctx, cacheScope, query, topK); cached != nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		// The resilient embedder only errors when even the local fallback
		// is broken; degrade straight to keyword search.
		logger.Warn("Query embedding failed, using keyword search", "error", err)
		return r.keywordSearch(ctx, query, namespaces, topK), nil
	}

	results := r.vectorSearch(ctx, queryVector, namespaces, topK)
	if len(results) == 0 {
		results = r.keywordSearch(ctx, query, namespaces, topK)
	}

	r.cache.Set(ctx, cacheScope, query, topK, results)
	span.SetAttributes(attribute.Int("results.count", len(results)))
	return results, nil
}

// vectorSearch queries every namespace concurrently, requesting a fair
// share of topK from each, then merges and reranks globally.
func (r *Retriever) vectorSearch(ctx context.Context, queryVector []float32, namespaces []string, topK int) []models.SearchResult {
	perNamespace := (topK + len(namespaces) - 1) / len(namespaces)

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		merged []models.SearchResult
	)
	for _, ns := range namespaces {
		wg.Add(1)
		go func(ns string) {
			defer wg.Done()
			results, err := r.store.SearchByVector(ctx, queryVector, ns, perNamespace, r.threshold)
			if err != nil {
				logger.Warn("Namespace search failed", "namespace", ns, "error", err)
				return
			}
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
		}(ns)
	}
	wg.Wait()

	return rankResults(merged, topK)
}

// keywordSearch is the degraded path: per-namespace text matching on the
// backend, tagged so response assembly can soften its confidence language.
func (r *Retriever) keywordSearch(ctx context.Context, query string, namespaces []string, topK int) []models.SearchResult {
	perNamespace := (topK + len(namespaces) - 1) / len(namespaces)

	var merged []models.SearchResult
	for _, ns := range namespaces {
		results, err := r.store.Search(ctx, query, ns, perNamespace, 0)
		if err != nil {
			logger.Debug("Keyword search unavailable", "namespace", ns, "error", err)
			continue
		}
		merged = append(merged, results...)
	}

	for i := range merged {
		merged[i].Source = models.SourceKeywordFallback
	}
	return rankResults(merged, topK)
}

// rankResults deduplicates by document and chunk ordinal, keeping the
// highest score for each, then sorts descending and caps at topK. Ties
// break on id so ranking stays deterministic across runs.
func rankResults(results []models.SearchResult, topK int) []models.SearchResult {
	type chunkKey struct {
		documentID string
		chunkIndex int
	}

	best := make(map[chunkKey]models.SearchResult, len(results))
	for _, res := range results {
		key := chunkKey{res.Metadata.DocumentID, res.Metadata.ChunkIndex}
		if existing, ok := best[key]; !ok || res.Score > existing.Score {
			best[key] = res
		}
	}

	deduped := make([]models.SearchResult, 0, len(best))
	for _, res := range best {
		deduped = append(deduped, res)
	}
	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].Score != deduped[j].Score {
			return deduped[i].Score > deduped[j].Score
		}
		return deduped[i].ID < deduped[j].ID
	})

	if len(deduped) > topK {
		deduped = deduped[:topK]
	}
	if deduped == nil {
		deduped = []models.SearchResult{}
	}
	return deduped
}
