package models

import "time"

// RecordMetadata is the closed metadata bag carried with every vector record.
// The field set must stay stable across backend swaps; a backend that cannot
// round-trip all of these fields is not a valid implementation.
//
// Content and EncryptedContent/IV are mutually exclusive: when a corpus is
// configured for encryption the plaintext field is left empty and the cipher
// text plus initialization vector are stored side by side.
type RecordMetadata struct {
	DocumentID       string       `json:"documentId"`
	DocumentName     string       `json:"documentName"`
	Content          string       `json:"content,omitempty"`
	EncryptedContent string       `json:"encryptedContent,omitempty"`
	IV               string       `json:"iv,omitempty"`
	ChunkIndex       int          `json:"chunkIndex"`
	MimeType         string       `json:"mimeType"`
	Namespace        string       `json:"namespace"`
	SourceLink       string       `json:"sourceLink,omitempty"`
	Quality          ChunkQuality `json:"quality,omitempty"`
	Keywords         []string     `json:"keywords,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// VectorRecord is the embedding-space representation of a Chunk. Its ID
// equals the chunk ID for 1:1 traceability. Records are never updated in
// place; re-embedding upserts a new record under the same id.
type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata RecordMetadata `json:"metadata"`
}

// ResultSource tags how a search result was produced so the response
// assembler can adjust confidence and citation language.
type ResultSource string

const (
	SourceVector          ResultSource = "vector"
	SourceKeywordFallback ResultSource = "keyword-fallback"
)

// SearchResult is ephemeral: a stored record plus its similarity score and
// decoded content ready for display.
type SearchResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Content  string         `json:"content"`
	Source   ResultSource   `json:"source"`
	Metadata RecordMetadata `json:"metadata"`
}

// StoreStats reports operational counters for a vector backend.
type StoreStats struct {
	Backend     string    `json:"backend"`
	Available   bool      `json:"available"`
	RecordCount int64     `json:"record_count"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// HealthStatus is the result of a backend health probe.
type HealthStatus struct {
	Backend     string `json:"backend"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	RecordCount int64  `json:"record_count"`
}
