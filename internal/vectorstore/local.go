package vectorstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"merchant-docs-rag/models"
)

// LocalStore is a pure in-memory backend used as the unconditional last
// fallback and as a test double. Every query is an O(n) scan; acceptable at
// this tier since it only exists to keep retrieval functional.
type LocalStore struct {
	mu        sync.RWMutex
	records   map[string]models.VectorRecord
	dimension int
	updatedAt time.Time
}

func NewLocalStore(dimension int) *LocalStore {
	return &LocalStore{
		records:   make(map[string]models.VectorRecord),
		dimension: dimension,
	}
}

func (s *LocalStore) Initialize(_ context.Context) error { return nil }
func (s *LocalStore) IsAvailable(_ context.Context) bool { return true }
func (s *LocalStore) Backend() Backend                   { return BackendLocal }

func (s *LocalStore) Store(_ context.Context, record models.VectorRecord) error {
	if err := checkDimension(record.Values, s.dimension); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	s.updatedAt = time.Now()
	return nil
}

func (s *LocalStore) StoreBatch(ctx context.Context, records []models.VectorRecord) (int, error) {
	stored := 0
	for _, rec := range records {
		if err := s.Store(ctx, rec); err != nil {
			continue
		}
		stored++
	}
	return stored, nil
}

func (s *LocalStore) Search(_ context.Context, queryText, namespace string, limit int, threshold float64) ([]models.SearchResult, error) {
	queryTokens := tokenize(queryText)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.SearchResult
	for _, rec := range s.records {
		if namespace != "" && rec.Metadata.Namespace != namespace {
			continue
		}
		content := rec.Metadata.Content
		score := tokenOverlap(queryTokens, content)
		// Exact substring hits always clear a sensible threshold
		if strings.Contains(strings.ToLower(content), strings.ToLower(strings.TrimSpace(queryText))) && score < 0.5 {
			score = 0.5
		}
		if score >= threshold && score > 0 {
			results = append(results, resultFromRecord(rec, score))
		}
	}

	sortAndCap(&results, limit)
	return results, nil
}

func (s *LocalStore) SearchByVector(_ context.Context, vector []float32, namespace string, limit int, threshold float64) ([]models.SearchResult, error) {
	if err := checkDimension(vector, s.dimension); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.SearchResult
	for _, rec := range s.records {
		if namespace != "" && rec.Metadata.Namespace != namespace {
			continue
		}
		score := CosineSimilarity(vector, rec.Values)
		if score >= threshold {
			results = append(results, resultFromRecord(rec, score))
		}
	}

	sortAndCap(&results, limit)
	return results, nil
}

func (s *LocalStore) Get(_ context.Context, id string) (*models.VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *LocalStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	s.updatedAt = time.Now()
	return nil
}

func (s *LocalStore) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if rec.Metadata.DocumentID == documentID {
			delete(s.records, id)
		}
	}
	s.updatedAt = time.Now()
	return nil
}

func (s *LocalStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]models.VectorRecord)
	s.updatedAt = time.Now()
	return nil
}

func (s *LocalStore) GetStats(_ context.Context) (models.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.StoreStats{
		Backend:     string(BackendLocal),
		Available:   true,
		RecordCount: int64(len(s.records)),
		LastUpdated: s.updatedAt,
	}, nil
}

func (s *LocalStore) Health(ctx context.Context) models.HealthStatus {
	stats, _ := s.GetStats(ctx)
	return models.HealthStatus{
		Backend:     string(BackendLocal),
		Status:      "healthy",
		RecordCount: stats.RecordCount,
	}
}

// CosineSimilarity is the normalized dot product of two vectors. Returns 0
// for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?()[]{}\"")
		if len(tok) > 2 {
			tokens[tok] = true
		}
	}
	return tokens
}

// tokenOverlap scores a record's content by the fraction of query tokens it
// contains.
func tokenOverlap(queryTokens map[string]bool, content string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	contentTokens := tokenize(content)
	matches := 0
	for tok := range queryTokens {
		if contentTokens[tok] {
			matches++
		}
	}
	return float64(matches) / float64(len(queryTokens))
}

func resultFromRecord(rec models.VectorRecord, score float64) models.SearchResult {
	return models.SearchResult{
		ID:       rec.ID,
		Score:    score,
		Content:  rec.Metadata.Content,
		Source:   models.SourceVector,
		Metadata: rec.Metadata,
	}
}

func sortAndCap(results *[]models.SearchResult, limit int) {
	sort.Slice(*results, func(i, j int) bool {
		return (*results)[i].Score > (*results)[j].Score
	})
	if limit > 0 && len(*results) > limit {
		*results = (*results)[:limit]
	}
}
