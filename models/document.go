package models

import "time"

// DocumentStatus tracks a document through the indexing lifecycle.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// IndexingStage is the fine-grained step a document is in while processing.
type IndexingStage string

const (
	StageUploaded   IndexingStage = "uploaded"
	StageExtracting IndexingStage = "extracting"
	StageChunking   IndexingStage = "chunking"
	StageEmbedding  IndexingStage = "embedding"
	StageIndexed    IndexingStage = "indexed"
	StageFailed     IndexingStage = "failed"
)

// ExtractionMeta records how a document's text was obtained.
type ExtractionMeta struct {
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// Document is a unit of ingested content. Content may be lazily loaded;
// the processing pipeline fills in ExtractionMeta and ChunkCount.
type Document struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	MimeType    string         `json:"mime_type"`
	Size        int64          `json:"size"`
	Content     []byte         `json:"-"`
	Namespace   string         `json:"namespace"`
	SourceLink  string         `json:"source_link,omitempty"`
	Status      DocumentStatus `json:"status"`
	Stage       IndexingStage  `json:"stage,omitempty"`
	Extraction  ExtractionMeta `json:"extraction"`
	ChunkCount  int            `json:"chunk_count"`
	UploadedAt  time.Time      `json:"uploaded_at"`
	ProcessedAt time.Time      `json:"processed_at,omitempty"`
	ErrorMsg    string         `json:"error_message,omitempty"`
}
