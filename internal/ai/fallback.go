package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// FallbackEmbedder produces a deterministic low-fidelity vector from
// character trigram hashing. It exists so indexing and search keep working
// when no real provider is reachable; relevance quality will be poor and
// every use is logged by the caller. Never mix its vectors with a real
// provider's in the same index.
type FallbackEmbedder struct {
	dimension int
}

func NewFallbackEmbedder(dimension int) *FallbackEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &FallbackEmbedder{dimension: dimension}
}

func (f *FallbackEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, f.dimension)
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return vec, nil
	}

	// Hash overlapping trigrams into buckets so shared substrings yield
	// correlated vectors.
	runes := []rune(normalized)
	for i := 0; i < len(runes); i++ {
		end := i + 3
		if end > len(runes) {
			end = len(runes)
		}
		h := fnv.New32a()
		h.Write([]byte(string(runes[i:end])))
		bucket := int(h.Sum32()) % f.dimension
		if bucket < 0 {
			bucket += f.dimension
		}
		vec[bucket]++
	}

	// L2-normalize so cosine similarity behaves like the real providers.
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		norm := float32(math.Sqrt(sum))
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec, nil
}

func (f *FallbackEmbedder) Dimension() int { return f.dimension }
func (f *FallbackEmbedder) Name() string   { return "local-fallback" }
