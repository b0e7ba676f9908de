package models

import "fmt"

// ChunkQuality is an ordinal triage label, not a ranking signal.
type ChunkQuality string

const (
	QualityHigh   ChunkQuality = "high"
	QualityMedium ChunkQuality = "medium"
	QualityLow    ChunkQuality = "low"
)

// Chunk is a bounded slice of a document's extracted text, the unit of
// embedding and retrieval. IDs are deterministic so re-indexing a document
// overwrites its previous chunks by upsert.
type Chunk struct {
	ID         string       `json:"id"`
	DocumentID string       `json:"document_id"`
	Index      int          `json:"chunk_index"`
	Content    string       `json:"content"`
	Quality    ChunkQuality `json:"quality"`
	Keywords   []string     `json:"keywords,omitempty"`
}

// ChunkID builds the stable per-chunk identity from document id and ordinal.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, index)
}
