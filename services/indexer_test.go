package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchant-docs-rag/internal/ai"
	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/internal/vectorstore"
	"merchant-docs-rag/models"
)

func testPipeline(t *testing.T) (*Indexer, *vectorstore.LocalStore, *DocumentRegistry) {
	t.Helper()
	cfg := &config.Config{
		MaxChunkSize:     120,
		MinChunkSize:     40,
		MerchantTerms:    []string{"interchange", "settlement"},
		VectorDimensions: testDim,
	}
	store := vectorstore.NewLocalStore(testDim)
	require.NoError(t, store.Initialize(context.Background()))

	registry := NewDocumentRegistry()
	indexer := NewIndexer(
		NewExtractor(cfg),
		NewChunker(cfg),
		ai.NewFallbackEmbedder(testDim),
		store,
		nil,
		registry,
	)
	return indexer, store, registry
}

func textDocument(id, text string) *models.Document {
	return &models.Document{
		ID:         id,
		Name:       id + ".txt",
		MimeType:   "text/plain",
		Size:       int64(len(text)),
		Content:    []byte(text),
		Namespace:  "test",
		Status:     models.StatusPending,
		Stage:      models.StageUploaded,
		UploadedAt: time.Now(),
	}
}

func TestProcessDocumentFullPipeline(t *testing.T) {
	indexer, store, registry := testPipeline(t)
	ctx := context.Background()

	doc := textDocument("doc-1",
		"Interchange rates apply per transaction. Settlement funds arrive the next day. Statements list every fee separately.")
	require.NoError(t, indexer.ProcessDocument(ctx, doc))

	state, ok := registry.Get("doc-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, state.Status)
	assert.Equal(t, models.StageIndexed, state.Stage)
	assert.Equal(t, "direct", state.Extraction.Method)
	assert.Positive(t, state.ChunkCount)
	assert.False(t, state.ProcessedAt.IsZero())

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(state.ChunkCount), stats.RecordCount)

	// Chunk ids follow the deterministic scheme.
	rec, err := store.Get(ctx, models.ChunkID("doc-1", 0))
	require.NoError(t, err)
	assert.Equal(t, "doc-1", rec.Metadata.DocumentID)
	assert.Equal(t, "test", rec.Metadata.Namespace)
	assert.NotEmpty(t, rec.Metadata.Content)
}

func TestReindexRemovesStaleChunks(t *testing.T) {
	indexer, store, registry := testPipeline(t)
	ctx := context.Background()

	long := textDocument("doc-2", strings.Repeat("A sentence about settlement timing. ", 12))
	require.NoError(t, indexer.ProcessDocument(ctx, long))
	state, ok := registry.Get("doc-2")
	require.True(t, ok)
	firstCount := state.ChunkCount
	require.Greater(t, firstCount, 1)

	// Re-upload a much shorter version of the same document.
	short := textDocument("doc-2", "A single short sentence about settlement.")
	require.NoError(t, indexer.ProcessDocument(ctx, short))
	state, ok = registry.Get("doc-2")
	require.True(t, ok)
	require.Less(t, state.ChunkCount, firstCount)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(state.ChunkCount), stats.RecordCount,
		"chunks from the longer version must not survive the reindex")

	_, err = store.Get(ctx, models.ChunkID("doc-2", firstCount-1))
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
}

func TestProcessDocumentWithNoContentFails(t *testing.T) {
	indexer, _, registry := testPipeline(t)

	doc := textDocument("doc-3", "")
	// Empty direct text degrades to the name placeholder, which still
	// produces a chunk; force a true failure with an empty name too.
	doc.Name = ""
	doc.MimeType = ""
	err := indexer.ProcessDocument(context.Background(), doc)
	state, ok := registry.Get("doc-3")
	require.True(t, ok)
	if err != nil {
		assert.Equal(t, models.StatusFailed, state.Status)
		assert.NotEmpty(t, state.ErrorMsg)
	} else {
		// The placeholder path indexed it; it must be flagged low trust.
		assert.Equal(t, "fallback", state.Extraction.Method)
	}
}

func TestDeleteDocument(t *testing.T) {
	indexer, store, _ := testPipeline(t)
	ctx := context.Background()

	doc := textDocument("doc-4", "Settlement happens daily. Interchange is billed monthly.")
	require.NoError(t, indexer.ProcessDocument(ctx, doc))

	require.NoError(t, indexer.DeleteDocument(ctx, "doc-4", "test"))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.RecordCount)
}

func TestStatusPollsDuringProcessing(t *testing.T) {
	indexer, _, registry := testPipeline(t)

	doc := textDocument("doc-5", strings.Repeat("Settlement funds arrive the next business day. ", 20))
	registry.Save(doc)

	// Poll the registry from another goroutine for the whole run; the
	// registry hands out copies, so readers never share the worker's
	// struct.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				if state, ok := registry.Get("doc-5"); ok {
					_ = state.Status
					_ = state.Stage
					_ = state.ChunkCount
				}
			}
		}
	}()

	require.NoError(t, indexer.ProcessDocument(context.Background(), doc))
	close(stop)
	<-done

	state, ok := registry.Get("doc-5")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, state.Status)
}
