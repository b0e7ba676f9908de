package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"merchant-docs-rag/internal/logger"
	"merchant-docs-rag/models"
)

const (
	pineconeControlPlane = "https://api.pinecone.io"
	pineconeAPIVersion   = "2024-07"

	indexReadyTimeout  = 2 * time.Minute
	indexReadyInterval = 5 * time.Second
)

// PineconeStore talks to a managed Pinecone index over its REST API.
// Initialize creates the index if it does not exist and waits for it to
// become ready before the first upsert.
type PineconeStore struct {
	apiKey     string
	indexName  string
	dimension  int
	httpClient *http.Client
	indexHost  string
}

type pineconeIndexSpec struct {
	Serverless struct {
		Cloud  string `json:"cloud"`
		Region string `json:"region"`
	} `json:"serverless"`
}

type pineconeIndexDescription struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Host      string `json:"host"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

type pineconeVector struct {
	ID       string                `json:"id"`
	Values   []float32             `json:"values"`
	Metadata models.RecordMetadata `json:"metadata"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeUpsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

type pineconeQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Namespace       string    `json:"namespace,omitempty"`
	IncludeValues   bool      `json:"includeValues"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type pineconeMatch struct {
	ID       string                `json:"id"`
	Score    float64               `json:"score"`
	Values   []float32             `json:"values,omitempty"`
	Metadata models.RecordMetadata `json:"metadata"`
}

type pineconeQueryResponse struct {
	Matches   []pineconeMatch `json:"matches"`
	Namespace string          `json:"namespace"`
}

type pineconeFetchResponse struct {
	Vectors map[string]pineconeVector `json:"vectors"`
}

type pineconeDeleteRequest struct {
	IDs       []string       `json:"ids,omitempty"`
	DeleteAll bool           `json:"deleteAll,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
}

type pineconeStatsResponse struct {
	TotalVectorCount int64 `json:"totalVectorCount"`
	Dimension        int   `json:"dimension"`
	Namespaces       map[string]struct {
		VectorCount int64 `json:"vectorCount"`
	} `json:"namespaces"`
}

// NewPineconeStore creates a Pinecone-backed store. The index is not
// touched until Initialize is called. indexHost may be empty, in which
// case the host is discovered from the control plane.
func NewPineconeStore(apiKey, indexName, indexHost string, dimension int) *PineconeStore {
	s := &PineconeStore{
		apiKey:    apiKey,
		indexName: indexName,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	if indexHost != "" {
		s.indexHost = "https://" + strings.TrimPrefix(indexHost, "https://")
	}
	return s
}

func (s *PineconeStore) Initialize(ctx context.Context) error {
	if s.apiKey == "" || s.indexName == "" {
		return fmt.Errorf("%w: PINECONE_API_KEY or PINECONE_INDEX_NAME not set", ErrBackendUnavailable)
	}

	// A preconfigured host skips control-plane discovery entirely.
	if s.indexHost != "" {
		if !s.IsAvailable(ctx) {
			return fmt.Errorf("%w: configured index host %s is unreachable",
				ErrBackendUnavailable, s.indexHost)
		}
		logger.Info("Pinecone index host configured", "index", s.indexName, "host", s.indexHost)
		return nil
	}

	desc, err := s.describeIndex(ctx)
	if err == nil {
		if desc.Dimension != s.dimension {
			return fmt.Errorf("%w: index %s has dimension %d, expected %d",
				ErrDimensionMismatch, s.indexName, desc.Dimension, s.dimension)
		}
		if !desc.Status.Ready {
			if desc, err = s.waitUntilReady(ctx); err != nil {
				return err
			}
		}
		s.indexHost = "https://" + desc.Host
		logger.Info("Pinecone index ready", "index", s.indexName, "dimension", desc.Dimension)
		return nil
	}

	logger.Info("Pinecone index not found, creating", "index", s.indexName, "dimension", s.dimension)
	if err := s.createIndex(ctx); err != nil {
		return err
	}
	desc, err = s.waitUntilReady(ctx)
	if err != nil {
		return err
	}
	s.indexHost = "https://" + desc.Host
	logger.Info("Pinecone index created", "index", s.indexName)
	return nil
}

func (s *PineconeStore) describeIndex(ctx context.Context) (*pineconeIndexDescription, error) {
	var desc pineconeIndexDescription
	err := s.doControl(ctx, "GET", "/indexes/"+s.indexName, nil, &desc)
	if err != nil {
		return nil, err
	}
	return &desc, nil
}

func (s *PineconeStore) createIndex(ctx context.Context) error {
	var spec pineconeIndexSpec
	spec.Serverless.Cloud = "aws"
	spec.Serverless.Region = "us-east-1"

	body := map[string]any{
		"name":      s.indexName,
		"dimension": s.dimension,
		"metric":    "cosine",
		"spec":      spec,
	}
	if err := s.doControl(ctx, "POST", "/indexes", body, nil); err != nil {
		return fmt.Errorf("failed to create index %s: %w", s.indexName, err)
	}
	return nil
}

func (s *PineconeStore) waitUntilReady(ctx context.Context) (*pineconeIndexDescription, error) {
	deadline := time.Now().Add(indexReadyTimeout)
	for {
		desc, err := s.describeIndex(ctx)
		if err == nil && desc.Status.Ready {
			return desc, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: index %s did not become ready within %s",
				ErrBackendUnavailable, s.indexName, indexReadyTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(indexReadyInterval):
		}
	}
}

func (s *PineconeStore) IsAvailable(ctx context.Context) bool {
	if s.indexHost == "" {
		return false
	}
	var stats pineconeStatsResponse
	return s.doData(ctx, "POST", "/describe_index_stats", map[string]any{}, &stats) == nil
}

func (s *PineconeStore) Backend() Backend { return BackendPinecone }

func (s *PineconeStore) Store(ctx context.Context, record models.VectorRecord) error {
	_, err := s.StoreBatch(ctx, []models.VectorRecord{record})
	return err
}

func (s *PineconeStore) StoreBatch(ctx context.Context, records []models.VectorRecord) (int, error) {
	if s.indexHost == "" {
		return 0, ErrBackendUnavailable
	}

	// Group by namespace; the upsert endpoint takes one namespace per call.
	byNamespace := make(map[string][]pineconeVector)
	for _, rec := range records {
		if err := checkDimension(rec.Values, s.dimension); err != nil {
			return 0, fmt.Errorf("%w: record %s has %d values, index expects %d",
				ErrDimensionMismatch, rec.ID, len(rec.Values), s.dimension)
		}
		ns := rec.Metadata.Namespace
		byNamespace[ns] = append(byNamespace[ns], pineconeVector{
			ID:       rec.ID,
			Values:   rec.Values,
			Metadata: rec.Metadata,
		})
	}

	// A failed batch is logged and skipped so the rest of the records
	// still land; callers see how many made it in.
	stored := 0
	var lastErr error
	for ns, vectors := range byNamespace {
		for start := 0; start < len(vectors); start += storeBatchSize {
			end := start + storeBatchSize
			if end > len(vectors) {
				end = len(vectors)
			}
			req := pineconeUpsertRequest{Vectors: vectors[start:end], Namespace: ns}
			var resp pineconeUpsertResponse
			if err := s.doData(ctx, "POST", "/vectors/upsert", req, &resp); err != nil {
				lastErr = fmt.Errorf("upsert batch failed in namespace %q: %w", ns, err)
				logger.Warn("Skipping failed upsert batch",
					"namespace", ns, "size", end-start, "error", err)
				continue
			}
			stored += resp.UpsertedCount
		}
	}
	if stored == 0 && lastErr != nil {
		return 0, lastErr
	}
	return stored, nil
}

// Search has no server-side text path on this backend; callers that need
// keyword matching should rely on the fallback chain instead.
func (s *PineconeStore) Search(ctx context.Context, queryText, namespace string, limit int, threshold float64) ([]models.SearchResult, error) {
	return nil, fmt.Errorf("%w: pinecone backend has no text search", ErrBackendUnavailable)
}

func (s *PineconeStore) SearchByVector(ctx context.Context, vector []float32, namespace string, limit int, threshold float64) ([]models.SearchResult, error) {
	if s.indexHost == "" {
		return nil, ErrBackendUnavailable
	}
	if err := checkDimension(vector, s.dimension); err != nil {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	req := pineconeQueryRequest{
		Vector:          vector,
		TopK:            limit,
		Namespace:       namespace,
		IncludeMetadata: true,
	}
	var resp pineconeQueryResponse
	if err := s.doData(ctx, "POST", "/query", req, &resp); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	var results []models.SearchResult
	for _, match := range resp.Matches {
		if match.Score < threshold {
			continue
		}
		results = append(results, models.SearchResult{
			ID:       match.ID,
			Score:    match.Score,
			Content:  match.Metadata.Content,
			Source:   models.SourceVector,
			Metadata: match.Metadata,
		})
	}
	return results, nil
}

func (s *PineconeStore) Get(ctx context.Context, id string) (*models.VectorRecord, error) {
	if s.indexHost == "" {
		return nil, ErrBackendUnavailable
	}
	var resp pineconeFetchResponse
	path := "/vectors/fetch?ids=" + id
	if err := s.doData(ctx, "GET", path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch failed for record %s: %w", id, err)
	}
	vec, ok := resp.Vectors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &models.VectorRecord{ID: vec.ID, Values: vec.Values, Metadata: vec.Metadata}, nil
}

func (s *PineconeStore) Delete(ctx context.Context, id string) error {
	if s.indexHost == "" {
		return ErrBackendUnavailable
	}
	req := pineconeDeleteRequest{IDs: []string{id}}
	if err := s.doData(ctx, "POST", "/vectors/delete", req, nil); err != nil {
		return fmt.Errorf("delete failed for record %s: %w", id, err)
	}
	return nil
}

func (s *PineconeStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if s.indexHost == "" {
		return ErrBackendUnavailable
	}
	req := pineconeDeleteRequest{
		Filter: map[string]any{"documentId": map[string]any{"$eq": documentID}},
	}
	if err := s.doData(ctx, "POST", "/vectors/delete", req, nil); err != nil {
		return fmt.Errorf("failed to delete vectors for document %s: %w", documentID, err)
	}
	logger.Info("Deleted document vectors", "document_id", documentID, "backend", BackendPinecone)
	return nil
}

func (s *PineconeStore) Clear(ctx context.Context) error {
	if s.indexHost == "" {
		return ErrBackendUnavailable
	}
	req := pineconeDeleteRequest{DeleteAll: true}
	return s.doData(ctx, "POST", "/vectors/delete", req, nil)
}

func (s *PineconeStore) GetStats(ctx context.Context) (models.StoreStats, error) {
	stats := models.StoreStats{Backend: string(BackendPinecone)}
	if s.indexHost == "" {
		return stats, ErrBackendUnavailable
	}
	var resp pineconeStatsResponse
	if err := s.doData(ctx, "POST", "/describe_index_stats", map[string]any{}, &resp); err != nil {
		return stats, fmt.Errorf("failed to read index stats: %w", err)
	}
	stats.Available = true
	stats.RecordCount = resp.TotalVectorCount
	return stats, nil
}

func (s *PineconeStore) Health(ctx context.Context) models.HealthStatus {
	health := models.HealthStatus{Backend: string(BackendPinecone)}
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

// doControl issues a control-plane request (index management).
func (s *PineconeStore) doControl(ctx context.Context, method, path string, body, out any) error {
	return s.do(ctx, method, pineconeControlPlane+path, body, out)
}

// doData issues a data-plane request against the index host.
func (s *PineconeStore) doData(ctx context.Context, method, path string, body, out any) error {
	return s.do(ctx, method, s.indexHost+path, body, out)
}

func (s *PineconeStore) do(ctx context.Context, method, url string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Api-Key", s.apiKey)
	req.Header.Set("X-Pinecone-API-Version", pineconeAPIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pinecone request failed with status %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
