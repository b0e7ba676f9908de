package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"merchant-docs-rag/internal/ai"
	"merchant-docs-rag/internal/logger"
	"merchant-docs-rag/internal/vectorstore"
	"merchant-docs-rag/models"
)

// Indexer runs the document pipeline: extract, chunk, embed, store.
// Old vectors for a document are removed before the rewrite so chunk
// count shrinkage never leaves stale records behind.
type Indexer struct {
	extractor *Extractor
	chunker   *Chunker
	embedder  ai.Embedder
	store     vectorstore.VectorStore
	cache     *SearchCache
	registry  *DocumentRegistry
}

func NewIndexer(extractor *Extractor, chunker *Chunker, embedder ai.Embedder, store vectorstore.VectorStore, cache *SearchCache, registry *DocumentRegistry) *Indexer {
	return &Indexer{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		cache:     cache,
		registry:  registry,
	}
}

// ProcessDocument drives the document through every indexing stage. The
// passed document is an input snapshot; stage and status transitions are
// published through the registry, where status pollers read their own
// copies. On error the document is marked failed with the cause recorded;
// partial progress in the store has already been cleaned up by the
// pre-write delete.
func (idx *Indexer) ProcessDocument(ctx context.Context, doc *models.Document) error {
	tracer := otel.Tracer("indexer")
	ctx, span := tracer.Start(ctx, "indexer.process_document")
	span.SetAttributes(
		attribute.String("document.id", doc.ID),
		attribute.String("document.mime_type", doc.MimeType),
	)
	defer span.End()

	work := *doc
	doc = &work

	doc.Status = models.StatusProcessing
	idx.publishState(doc)

	if err := idx.run(ctx, doc); err != nil {
		doc.Status = models.StatusFailed
		doc.Stage = models.StageFailed
		doc.ErrorMsg = err.Error()
		idx.publishState(doc)
		logger.Error("Document indexing failed", "document_id", doc.ID, "error", err)
		return err
	}

	doc.Status = models.StatusCompleted
	doc.Stage = models.StageIndexed
	doc.ProcessedAt = time.Now()
	doc.ErrorMsg = ""
	idx.publishState(doc)

	if idx.cache != nil {
		idx.cache.Invalidate(ctx, doc.Namespace)
	}

	logger.Info("Document indexed",
		"document_id", doc.ID,
		"chunks", doc.ChunkCount,
		"method", doc.Extraction.Method,
		"backend", idx.store.Backend())
	return nil
}

// publishState snapshots the document's current pipeline state into the
// registry so status polls see it without sharing the worker's struct.
func (idx *Indexer) publishState(doc *models.Document) {
	if idx.registry != nil {
		idx.registry.Save(doc)
	}
}

func (idx *Indexer) run(ctx context.Context, doc *models.Document) error {
	doc.Stage = models.StageExtracting
	idx.publishState(doc)
	extraction, err := idx.extractor.Extract(ctx, doc)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	doc.Extraction = extraction.Meta

	doc.Stage = models.StageChunking
	idx.publishState(doc)
	chunks := idx.chunker.ChunkText(doc.ID, extraction.Text)
	if len(chunks) == 0 {
		return fmt.Errorf("no indexable content in document %s", doc.ID)
	}
	doc.ChunkCount = len(chunks)

	doc.Stage = models.StageEmbedding
	idx.publishState(doc)
	records, err := idx.embedChunks(ctx, doc, chunks)
	if err != nil {
		return err
	}

	// Delete-then-rewrite: stale chunk ids from a previous, longer version
	// of the document must not survive the reindex.
	if err := idx.store.DeleteByDocument(ctx, doc.ID); err != nil {
		logger.Warn("Pre-write cleanup failed, continuing with upsert",
			"document_id", doc.ID, "error", err)
	}

	stored, err := idx.store.StoreBatch(ctx, records)
	if err != nil {
		return fmt.Errorf("vector store write failed: %w", err)
	}
	if stored < len(records) {
		logger.Warn("Some chunks were not stored",
			"document_id", doc.ID, "stored", stored, "expected", len(records))
	}
	return nil
}

// embedChunks embeds all chunk texts with bounded concurrency and builds
// the vector records. A document with any failed chunk embedding fails
// whole; a half-indexed document is worse than a failed one.
func (idx *Indexer) embedChunks(ctx context.Context, doc *models.Document, chunks []models.Chunk) ([]models.VectorRecord, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	results := ai.BatchEmbed(ctx, idx.embedder, texts)

	now := time.Now()
	records := make([]models.VectorRecord, 0, len(chunks))
	for i, res := range results {
		if res.Err != nil {
			return nil, fmt.Errorf("embedding chunk %d of document %s: %w", i, doc.ID, res.Err)
		}
		chunk := chunks[i]
		records = append(records, models.VectorRecord{
			ID:     chunk.ID,
			Values: res.Vector,
			Metadata: models.RecordMetadata{
				DocumentID:   doc.ID,
				DocumentName: doc.Name,
				Content:      chunk.Content,
				ChunkIndex:   chunk.Index,
				MimeType:     doc.MimeType,
				Namespace:    doc.Namespace,
				SourceLink:   doc.SourceLink,
				Quality:      chunk.Quality,
				Keywords:     chunk.Keywords,
				CreatedAt:    now,
			},
		})
	}
	return records, nil
}

// DeleteDocument removes every vector belonging to a document and
// invalidates cached search results that may reference it.
func (idx *Indexer) DeleteDocument(ctx context.Context, documentID, namespace string) error {
	if err := idx.store.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	if idx.cache != nil {
		idx.cache.Invalidate(ctx, namespace)
	}
	return nil
}
