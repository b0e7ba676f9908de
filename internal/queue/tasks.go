package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"merchant-docs-rag/internal/logger"
	"merchant-docs-rag/models"
	"merchant-docs-rag/services"
)

const TaskProcessDocument = "document:process"

// DocumentProcessPayload carries enough to rebuild the document in a
// worker process that does not share the API's registry: the spooled file
// path plus descriptor fields.
type DocumentProcessPayload struct {
	DocumentID string `json:"document_id"`
	Path       string `json:"path,omitempty"`
	Name       string `json:"name,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
	SourceLink string `json:"source_link,omitempty"`
}

// NewDocumentProcessTask builds the indexing task for a document.
func NewDocumentProcessTask(payload DocumentProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessDocument,
		data,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// TaskProcessor handles queued indexing work.
type TaskProcessor struct {
	indexer  *services.Indexer
	registry *services.DocumentRegistry
}

func NewTaskProcessor(indexer *services.Indexer, registry *services.DocumentRegistry) *TaskProcessor {
	return &TaskProcessor{indexer: indexer, registry: registry}
}

// ProcessDocument runs the indexing pipeline for the payload's document.
// The registry is consulted first; a worker without the upload in memory
// rebuilds the document from its spooled file. A document that exists
// nowhere skips retry.
func (p *TaskProcessor) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	doc, ok := p.registry.Get(payload.DocumentID)
	if !ok {
		restored, err := p.restoreFromSpool(payload)
		if err != nil {
			logger.Warn("Queued document no longer exists",
				"document_id", payload.DocumentID, "error", err)
			return asynq.SkipRetry
		}
		p.registry.Save(restored)
		doc = restored
	}

	if len(doc.Content) == 0 && payload.Path != "" {
		content, err := os.ReadFile(payload.Path)
		if err != nil {
			return fmt.Errorf("failed to read spooled file %s: %w", payload.Path, err)
		}
		doc.Content = content
	}

	logger.Info("Processing document from queue", "document_id", doc.ID, "name", doc.Name)
	return p.indexer.ProcessDocument(ctx, doc)
}

func (p *TaskProcessor) restoreFromSpool(payload DocumentProcessPayload) (*models.Document, error) {
	if payload.Path == "" {
		return nil, fmt.Errorf("no spool path in payload")
	}
	content, err := os.ReadFile(payload.Path)
	if err != nil {
		return nil, err
	}
	return &models.Document{
		ID:         payload.DocumentID,
		Name:       payload.Name,
		MimeType:   payload.MimeType,
		Size:       int64(len(content)),
		Content:    content,
		Namespace:  payload.Namespace,
		SourceLink: payload.SourceLink,
		Status:     models.StatusPending,
		Stage:      models.StageUploaded,
		UploadedAt: time.Now(),
	}, nil
}

// Register binds handlers onto an asynq mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskProcessDocument, p.ProcessDocument)
}
