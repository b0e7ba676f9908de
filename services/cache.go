package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"merchant-docs-rag/internal/logger"
	"merchant-docs-rag/models"
	"merchant-docs-rag/utils"
)

// SearchCache memoizes search responses in Redis. Payloads are compressed
// before storage since result sets carry full chunk text. A nil cache is
// valid everywhere it is consumed; callers treat it as a miss machine.
type SearchCache struct {
	client *redis.Client
	ttl    time.Duration
}

type cacheEnvelope struct {
	Algorithm utils.CompressionAlgorithm `json:"alg"`
	Payload   []byte                     `json:"payload"`
}

func NewSearchCache(client *redis.Client, ttlSeconds int) *SearchCache {
	if client == nil {
		return nil
	}
	return &SearchCache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

func (c *SearchCache) key(namespace, query string, topK int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", query, topK)))
	return fmt.Sprintf("search:%s:%s", namespace, hex.EncodeToString(sum[:16]))
}

// Get returns the cached results for a query, or nil on miss or any
// decode problem. Cache failures never surface to the caller.
func (c *SearchCache) Get(ctx context.Context, namespace, query string, topK int) []models.SearchResult {
	if c == nil {
		return nil
	}

	raw, err := c.client.Get(ctx, c.key(namespace, query, topK)).Bytes()
	if err != nil {
		return nil
	}

	var env cacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	data, err := utils.DecompressData(env.Payload, env.Algorithm)
	if err != nil {
		logger.Warn("Search cache entry corrupt, dropping", "error", err)
		return nil
	}

	var results []models.SearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil
	}
	return results
}

// Set stores results under the query key. Errors are logged, not returned.
func (c *SearchCache) Set(ctx context.Context, namespace, query string, topK int, results []models.SearchResult) {
	if c == nil {
		return
	}

	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	compressed, algorithm, err := utils.CompressText(string(data))
	if err != nil {
		logger.Warn("Failed to compress cache payload", "error", err)
		return
	}

	raw, err := json.Marshal(cacheEnvelope{Algorithm: algorithm, Payload: compressed})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(namespace, query, topK), raw, c.ttl).Err(); err != nil {
		logger.Warn("Failed to write search cache", "error", err)
	}
}

// Invalidate drops every cached query whose scope covers a namespace.
// Called after any write that changes the namespace's corpus. A key's
// scope is the comma-joined namespace list the query ran against; an
// empty scope means the query spanned all namespaces, so every write
// invalidates it.
func (c *SearchCache) Invalidate(ctx context.Context, namespace string) {
	if c == nil {
		return
	}

	iter := c.client.Scan(ctx, 0, "search:*", 100).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		key := iter.Val()
		body := strings.TrimPrefix(key, "search:")
		sep := strings.LastIndex(body, ":")
		if sep < 0 || !scopeContains(body[:sep], namespace) {
			continue
		}
		if err := c.client.Del(ctx, key).Err(); err == nil {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		logger.Warn("Search cache invalidation incomplete", "namespace", namespace, "error", err)
		return
	}
	if deleted > 0 {
		logger.Debug("Search cache invalidated", "namespace", namespace, "keys", deleted)
	}
}

// scopeContains reports whether a cached query scope covers the given
// namespace. Scopes are comma-joined; the empty scope is unscoped and
// covers everything.
func scopeContains(scope, namespace string) bool {
	if scope == "" {
		return true
	}
	for _, ns := range strings.Split(scope, ",") {
		if ns == namespace {
			return true
		}
	}
	return false
}
