// Package vectorstore provides a polymorphic vector store over three
// backends: a managed Pinecone index, Postgres with the pgvector extension,
// and an in-process local store. A factory selects the active backend once
// at startup and falls back down the chain when a backend is unavailable.
package vectorstore

import (
	"context"
	"errors"

	"merchant-docs-rag/models"
)

// Backend identifies which concrete implementation is active. Selected once
// by the factory, never re-detected per call.
type Backend string

const (
	BackendPinecone Backend = "pinecone"
	BackendPostgres Backend = "postgres"
	BackendLocal    Backend = "local"
)

var (
	// ErrBackendUnavailable means the backend is unreachable or unconfigured.
	// The factory treats it as a fallback signal.
	ErrBackendUnavailable = errors.New("vector backend unavailable")

	// ErrDimensionMismatch means a vector's size does not match the
	// configured index dimensionality. A configuration error, not retryable.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("vector record not found")
)

// VectorStore is the capability interface shared by all backends.
//
// Store and StoreBatch have upsert semantics: re-storing an id overwrites.
// StoreBatch chunks internally into provider-safe batch sizes and continues
// past individual batch failures, reporting how many records succeeded.
// Search results are sorted descending by similarity, filtered to
// similarity >= threshold, and capped at limit.
type VectorStore interface {
	// Initialize establishes the backend connection. Idempotent. Fails with
	// ErrBackendUnavailable when required credentials are absent.
	Initialize(ctx context.Context) error
	IsAvailable(ctx context.Context) bool
	Backend() Backend

	Store(ctx context.Context, record models.VectorRecord) error
	StoreBatch(ctx context.Context, records []models.VectorRecord) (int, error)

	// Search is the text entry point: token/substring matching where the
	// backend supports it, best-effort otherwise. Used as the last-resort
	// keyword fallback by the retrieval service.
	Search(ctx context.Context, queryText string, namespace string, limit int, threshold float64) ([]models.SearchResult, error)
	SearchByVector(ctx context.Context, vector []float32, namespace string, limit int, threshold float64) ([]models.SearchResult, error)

	Get(ctx context.Context, id string) (*models.VectorRecord, error)
	Delete(ctx context.Context, id string) error
	DeleteByDocument(ctx context.Context, documentID string) error

	// Clear removes every record in the configured table/index/namespace.
	// Destructive; scoped to this store's configuration only.
	Clear(ctx context.Context) error

	GetStats(ctx context.Context) (models.StoreStats, error)
	Health(ctx context.Context) models.HealthStatus
}

// storeBatchSize is the provider-safe upsert batch size.
const storeBatchSize = 100

// checkDimension validates a record's vector against the configured
// dimensionality before any write or search.
func checkDimension(values []float32, want int) error {
	if want > 0 && len(values) != want {
		return ErrDimensionMismatch
	}
	return nil
}
