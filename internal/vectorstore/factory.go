package vectorstore

import (
	"context"
	"fmt"

	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/internal/logger"
)

// NewStore builds the configured backend chain: primary, then secondary,
// then the in-memory store. The first backend that initializes wins; the
// in-memory store always succeeds, so the factory only errors on hard
// misconfiguration (bad encryption key).
//
// The selected store is wrapped with content encryption when a key is
// configured, so no backend ever sees plaintext for a sensitive corpus.
func NewStore(ctx context.Context, cfg *config.Config) (VectorStore, error) {
	candidates := backendOrder(cfg)

	var selected VectorStore
	for _, backend := range candidates {
		store := buildBackend(backend, cfg)
		if err := store.Initialize(ctx); err != nil {
			logger.Warn("Vector backend unavailable, trying next",
				"backend", backend, "error", err)
			continue
		}
		if store.Backend() != Backend(cfg.VectorBackend) {
			logger.Warn("Primary vector backend degraded",
				"wanted", cfg.VectorBackend, "using", store.Backend())
		}
		selected = store
		break
	}
	if selected == nil {
		// Unreachable in practice: LocalStore.Initialize never fails.
		selected = NewLocalStore(cfg.VectorDimensions)
		if err := selected.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("no vector backend available: %w", err)
		}
	}

	logger.Info("Vector store selected", "backend", selected.Backend())

	if cfg.ContentEncryptionKey != "" {
		cipher, err := NewContentCipher(cfg.ContentEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid content encryption key: %w", err)
		}
		logger.Info("Content encryption enabled", "backend", selected.Backend())
		return NewEncryptedStore(selected, cipher), nil
	}
	return selected, nil
}

// backendOrder returns the fallback chain with duplicates removed and the
// in-memory store always terminal.
func backendOrder(cfg *config.Config) []Backend {
	primary := Backend(cfg.VectorBackend)
	if primary == BackendLocal {
		return []Backend{BackendLocal}
	}
	order := []Backend{primary}
	secondary := Backend(cfg.VectorSecondaryBackend)
	if secondary != "" && secondary != primary && secondary != BackendLocal {
		order = append(order, secondary)
	}
	return append(order, BackendLocal)
}

func buildBackend(backend Backend, cfg *config.Config) VectorStore {
	switch backend {
	case BackendPinecone:
		return NewPineconeStore(cfg.PineconeAPIKey, cfg.PineconeIndexName,
			cfg.PineconeIndexHost, cfg.VectorDimensions)
	case BackendPostgres:
		return NewPostgresStore(cfg.PostgresURL, cfg.PostgresTable, cfg.VectorDimensions)
	default:
		return NewLocalStore(cfg.VectorDimensions)
	}
}
