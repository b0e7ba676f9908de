package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchant-docs-rag/internal/ai"
	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/internal/vectorstore"
	"merchant-docs-rag/models"
)

const testDim = 64

func seedStore(t *testing.T, embedder ai.Embedder) *vectorstore.LocalStore {
	t.Helper()
	store := vectorstore.NewLocalStore(testDim)
	require.NoError(t, store.Initialize(context.Background()))

	seed := []struct {
		id, docID, content, namespace string
		chunkIndex                    int
	}{
		{"docA-chunk-0", "docA", "Interchange fees depend on the card network and merchant category.", "payments", 0},
		{"docA-chunk-1", "docA", "Chargebacks must be disputed within ninety days of settlement.", "payments", 1},
		{"docB-chunk-0", "docB", "Terminal firmware updates are applied during the nightly batch window.", "hardware", 0},
	}
	for _, s := range seed {
		vec, err := embedder.Embed(context.Background(), s.content)
		require.NoError(t, err)
		require.NoError(t, store.Store(context.Background(), models.VectorRecord{
			ID:     s.id,
			Values: vec,
			Metadata: models.RecordMetadata{
				DocumentID: s.docID,
				Content:    s.content,
				ChunkIndex: s.chunkIndex,
				Namespace:  s.namespace,
				CreatedAt:  time.Now(),
			},
		}))
	}
	return store
}

func TestQueryReturnsMostSimilarChunk(t *testing.T) {
	embedder := ai.NewFallbackEmbedder(testDim)
	store := seedStore(t, embedder)
	retriever := NewRetriever(&config.Config{SearchThreshold: 0.1}, embedder, store, nil)

	results, err := retriever.Query(context.Background(),
		"Interchange fees depend on the card network and merchant category.",
		[]string{"payments"}, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// An identical query embeds to the identical vector.
	assert.Equal(t, "docA-chunk-0", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, models.SourceVector, results[0].Source)
}

func TestQueryDeduplicatesAcrossNamespaces(t *testing.T) {
	embedder := ai.NewFallbackEmbedder(testDim)
	store := seedStore(t, embedder)

	// Same document chunk indexed in a second namespace under another id.
	content := "Interchange fees depend on the card network and merchant category."
	vec, err := embedder.Embed(context.Background(), content)
	require.NoError(t, err)
	require.NoError(t, store.Store(context.Background(), models.VectorRecord{
		ID:     "mirror-copy",
		Values: vec,
		Metadata: models.RecordMetadata{
			DocumentID: "docA",
			Content:    content,
			ChunkIndex: 0,
			Namespace:  "hardware",
		},
	}))

	retriever := NewRetriever(&config.Config{SearchThreshold: 0.1}, embedder, store, nil)
	results, err := retriever.Query(context.Background(), content,
		[]string{"payments", "hardware"}, 10)
	require.NoError(t, err)

	seen := 0
	for _, res := range results {
		if res.Metadata.DocumentID == "docA" && res.Metadata.ChunkIndex == 0 {
			seen++
		}
	}
	assert.Equal(t, 1, seen, "duplicate document/chunk pairs must collapse to one result")
}

func TestQueryFallsBackToKeywordSearch(t *testing.T) {
	embedder := ai.NewFallbackEmbedder(testDim)
	store := seedStore(t, embedder)

	// A threshold no vector result can clear forces the keyword path.
	retriever := NewRetriever(&config.Config{SearchThreshold: 0.999}, embedder, store, nil)
	results, err := retriever.Query(context.Background(), "chargebacks", []string{"payments"}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, res := range results {
		assert.Equal(t, models.SourceKeywordFallback, res.Source)
	}
}

func TestQueryEmptyResultsIsNotAnError(t *testing.T) {
	embedder := ai.NewFallbackEmbedder(testDim)
	store := seedStore(t, embedder)
	retriever := NewRetriever(&config.Config{SearchThreshold: 0.999}, embedder, store, nil)

	results, err := retriever.Query(context.Background(), "zzzqqqxxx", []string{"payments"}, 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestQueryEmptyQueryShortCircuits(t *testing.T) {
	embedder := ai.NewFallbackEmbedder(testDim)
	store := seedStore(t, embedder)
	retriever := NewRetriever(&config.Config{SearchThreshold: 0.1}, embedder, store, nil)

	results, err := retriever.Query(context.Background(), "   ", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRankResultsOrderingAndCap(t *testing.T) {
	input := []models.SearchResult{
		{ID: "a", Score: 0.4, Metadata: models.RecordMetadata{DocumentID: "d1", ChunkIndex: 0}},
		{ID: "b", Score: 0.9, Metadata: models.RecordMetadata{DocumentID: "d1", ChunkIndex: 1}},
		{ID: "c", Score: 0.7, Metadata: models.RecordMetadata{DocumentID: "d2", ChunkIndex: 0}},
		// Duplicate of d1/1 with a lower score: must be dropped.
		{ID: "b2", Score: 0.5, Metadata: models.RecordMetadata{DocumentID: "d1", ChunkIndex: 1}},
	}

	ranked := rankResults(input, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].ID)
	assert.Equal(t, "c", ranked[1].ID)
}
