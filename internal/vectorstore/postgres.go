package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"merchant-docs-rag/internal/logger"
	"merchant-docs-rag/models"
)

// PostgresStore keeps vector records as rows in a pgvector-backed table.
// When the vector extension cannot be enabled it stays minimally functional:
// rows are stored without embeddings and Search degrades to a naive
// ILIKE substring match.
type PostgresStore struct {
	pool          *pgxpool.Pool
	connString    string
	table         string
	dimension     int
	vectorEnabled bool
	initialized   bool
}

func NewPostgresStore(connString, table string, dimension int) *PostgresStore {
	return &PostgresStore{
		connString: connString,
		table:      table,
		dimension:  dimension,
	}
}

func (s *PostgresStore) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	if s.connString == "" {
		return fmt.Errorf("%w: DATABASE_URL not set", ErrBackendUnavailable)
	}

	pgCfg, err := pgxpool.ParseConfig(s.connString)
	if err != nil {
		return fmt.Errorf("%w: invalid connection string: %v", ErrBackendUnavailable, err)
	}
	pgCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Registration fails harmlessly when the extension is missing;
		// vector writes are gated on vectorEnabled below.
		_ = pgxvector.RegisterTypes(ctx, conn)
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	s.pool = pool

	s.vectorEnabled = true
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		logger.Warn("pgvector extension unavailable - falling back to text search only", "error", err)
		s.vectorEnabled = false
	}

	if err := s.createTable(ctx); err != nil {
		pool.Close()
		s.pool = nil
		return fmt.Errorf("%w: table setup failed: %v", ErrBackendUnavailable, err)
	}

	s.initialized = true
	logger.Info("Postgres vector store initialized",
		"table", s.table, "vector_enabled", s.vectorEnabled, "dimension", s.dimension)
	return nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	embeddingCol := ""
	if s.vectorEnabled {
		embeddingCol = fmt.Sprintf("embedding vector(%d),", s.dimension)
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			document_name TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			encrypted_content TEXT NOT NULL DEFAULT '',
			iv TEXT NOT NULL DEFAULT '',
			chunk_index INT NOT NULL DEFAULT 0,
			mime_type TEXT NOT NULL DEFAULT '',
			namespace TEXT NOT NULL DEFAULT 'default',
			source_link TEXT NOT NULL DEFAULT '',
			quality TEXT NOT NULL DEFAULT '',
			keywords TEXT[] NOT NULL DEFAULT '{}',
			%s
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, embeddingCol)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_document_id_idx ON %s (document_id)", s.table, s.table))
	return err
}

func (s *PostgresStore) IsAvailable(ctx context.Context) bool {
	if s.pool == nil {
		return false
	}
	return s.pool.Ping(ctx) == nil
}

func (s *PostgresStore) Backend() Backend { return BackendPostgres }

func (s *PostgresStore) Store(ctx context.Context, record models.VectorRecord) error {
	if s.pool == nil {
		return ErrBackendUnavailable
	}
	if s.vectorEnabled {
		if err := checkDimension(record.Values, s.dimension); err != nil {
			return fmt.Errorf("%w: record %s has %d values, index expects %d",
				ErrDimensionMismatch, record.ID, len(record.Values), s.dimension)
		}
	}

	m := record.Metadata
	if s.vectorEnabled {
		_, err := s.pool.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, document_id, document_name, content, encrypted_content, iv,
				chunk_index, mime_type, namespace, source_link, quality, keywords, embedding, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
			ON CONFLICT (id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				document_name = EXCLUDED.document_name,
				content = EXCLUDED.content,
				encrypted_content = EXCLUDED.encrypted_content,
				iv = EXCLUDED.iv,
				chunk_index = EXCLUDED.chunk_index,
				mime_type = EXCLUDED.mime_type,
				namespace = EXCLUDED.namespace,
				source_link = EXCLUDED.source_link,
				quality = EXCLUDED.quality,
				keywords = EXCLUDED.keywords,
				embedding = EXCLUDED.embedding,
				updated_at = now()`, s.table),
			record.ID, m.DocumentID, m.DocumentName, m.Content, m.EncryptedContent, m.IV,
			m.ChunkIndex, m.MimeType, m.Namespace, m.SourceLink, string(m.Quality), m.Keywords,
			pgvector.NewVector(record.Values))
		if err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", record.ID, err)
		}
		return nil
	}

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, document_id, document_name, content, encrypted_content, iv,
			chunk_index, mime_type, namespace, source_link, quality, keywords, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			document_name = EXCLUDED.document_name,
			content = EXCLUDED.content,
			encrypted_content = EXCLUDED.encrypted_content,
			iv = EXCLUDED.iv,
			chunk_index = EXCLUDED.chunk_index,
			mime_type = EXCLUDED.mime_type,
			namespace = EXCLUDED.namespace,
			source_link = EXCLUDED.source_link,
			quality = EXCLUDED.quality,
			keywords = EXCLUDED.keywords,
			updated_at = now()`, s.table),
		record.ID, m.DocumentID, m.DocumentName, m.Content, m.EncryptedContent, m.IV,
		m.ChunkIndex, m.MimeType, m.Namespace, m.SourceLink, string(m.Quality), m.Keywords)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", record.ID, err)
	}
	return nil
}

func (s *PostgresStore) StoreBatch(ctx context.Context, records []models.VectorRecord) (int, error) {
	stored := 0
	for start := 0; start < len(records); start += storeBatchSize {
		end := start + storeBatchSize
		if end > len(records) {
			end = len(records)
		}
		for _, rec := range records[start:end] {
			if err := s.Store(ctx, rec); err != nil {
				if errors.Is(err, ErrDimensionMismatch) {
					return stored, err
				}
				logger.Warn("Batch store skipped record", "id", rec.ID, "error", err)
				continue
			}
			stored++
		}
	}
	return stored, nil
}

func (s *PostgresStore) Search(ctx context.Context, queryText, namespace string, limit int, threshold float64) ([]models.SearchResult, error) {
	if s.pool == nil {
		return nil, ErrBackendUnavailable
	}

	// Naive substring match; scored flat like the original's basic search.
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, document_id, document_name, content, encrypted_content, iv,
			chunk_index, mime_type, namespace, source_link, quality, keywords, created_at
		FROM %s
		WHERE content ILIKE '%%' || $1 || '%%'
		  AND ($2 = '' OR namespace = $2)
		LIMIT $3`, s.table),
		queryText, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}
	defer rows.Close()

	const substringScore = 0.5
	if substringScore < threshold {
		return nil, nil
	}

	var results []models.SearchResult
	for rows.Next() {
		res, err := scanResult(rows, substringScore)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (s *PostgresStore) SearchByVector(ctx context.Context, vector []float32, namespace string, limit int, threshold float64) ([]models.SearchResult, error) {
	if s.pool == nil {
		return nil, ErrBackendUnavailable
	}
	if !s.vectorEnabled {
		return nil, fmt.Errorf("%w: pgvector extension not enabled", ErrBackendUnavailable)
	}
	if err := checkDimension(vector, s.dimension); err != nil {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, document_id, document_name, content, encrypted_content, iv,
			chunk_index, mime_type, namespace, source_link, quality, keywords, created_at,
			1 - (embedding <=> $1) AS score
		FROM %s
		WHERE embedding IS NOT NULL
		  AND ($2 = '' OR namespace = $2)
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`, s.table),
		pgvector.NewVector(vector), namespace, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		res, err := scanScoredResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.VectorRecord, error) {
	if s.pool == nil {
		return nil, ErrBackendUnavailable
	}
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, document_id, document_name, content, encrypted_content, iv,
			chunk_index, mime_type, namespace, source_link, quality, keywords, created_at
		FROM %s WHERE id = $1`, s.table), id)

	var rec models.VectorRecord
	var quality string
	if err := row.Scan(&rec.ID, &rec.Metadata.DocumentID, &rec.Metadata.DocumentName,
		&rec.Metadata.Content, &rec.Metadata.EncryptedContent, &rec.Metadata.IV,
		&rec.Metadata.ChunkIndex, &rec.Metadata.MimeType, &rec.Metadata.Namespace,
		&rec.Metadata.SourceLink, &quality, &rec.Metadata.Keywords, &rec.Metadata.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	rec.Metadata.Quality = models.ChunkQuality(quality)
	return &rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if s.pool == nil {
		return ErrBackendUnavailable
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table), id)
	return err
}

func (s *PostgresStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if s.pool == nil {
		return ErrBackendUnavailable
	}
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", s.table), documentID)
	if err != nil {
		return fmt.Errorf("failed to delete vectors for document %s: %w", documentID, err)
	}
	logger.Info("Deleted document vectors", "document_id", documentID, "count", tag.RowsAffected())
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if s.pool == nil {
		return ErrBackendUnavailable
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table))
	return err
}

func (s *PostgresStore) GetStats(ctx context.Context) (models.StoreStats, error) {
	stats := models.StoreStats{Backend: string(BackendPostgres)}
	if s.pool == nil {
		return stats, ErrBackendUnavailable
	}
	var lastUpdated *time.Time
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*), MAX(updated_at) FROM %s", s.table))
	if err := row.Scan(&stats.RecordCount, &lastUpdated); err != nil {
		return stats, fmt.Errorf("failed to read stats: %w", err)
	}
	stats.Available = true
	if lastUpdated != nil {
		stats.LastUpdated = *lastUpdated
	}
	return stats, nil
}

func (s *PostgresStore) Health(ctx context.Context) models.HealthStatus {
	health := models.HealthStatus{Backend: string(BackendPostgres)}
	if s.pool == nil {
		health.Status = "unavailable"
		health.Error = "not initialized"
		return health
	}
	stats, err := s.GetStats(ctx)
	if err != nil {
		health.Status = "error"
		health.Error = err.Error()
		return health
	}
	health.Status = "healthy"
	health.RecordCount = stats.RecordCount
	return health
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner, score float64) (models.SearchResult, error) {
	var res models.SearchResult
	var quality string
	err := row.Scan(&res.ID, &res.Metadata.DocumentID, &res.Metadata.DocumentName,
		&res.Metadata.Content, &res.Metadata.EncryptedContent, &res.Metadata.IV,
		&res.Metadata.ChunkIndex, &res.Metadata.MimeType, &res.Metadata.Namespace,
		&res.Metadata.SourceLink, &quality, &res.Metadata.Keywords, &res.Metadata.CreatedAt)
	if err != nil {
		return res, fmt.Errorf("failed to scan result row: %w", err)
	}
	res.Metadata.Quality = models.ChunkQuality(quality)
	res.Score = score
	res.Content = res.Metadata.Content
	res.Source = models.SourceVector
	return res, nil
}

func scanScoredResult(row rowScanner) (models.SearchResult, error) {
	var res models.SearchResult
	var quality string
	err := row.Scan(&res.ID, &res.Metadata.DocumentID, &res.Metadata.DocumentName,
		&res.Metadata.Content, &res.Metadata.EncryptedContent, &res.Metadata.IV,
		&res.Metadata.ChunkIndex, &res.Metadata.MimeType, &res.Metadata.Namespace,
		&res.Metadata.SourceLink, &quality, &res.Metadata.Keywords, &res.Metadata.CreatedAt,
		&res.Score)
	if err != nil {
		return res, fmt.Errorf("failed to scan result row: %w", err)
	}
	res.Metadata.Quality = models.ChunkQuality(quality)
	res.Content = res.Metadata.Content
	res.Source = models.SourceVector
	return res, nil
}
