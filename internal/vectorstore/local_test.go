package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchant-docs-rag/models"
)

func record(id, docID, content, namespace string, values []float32) models.VectorRecord {
	return models.VectorRecord{
		ID:     id,
		Values: values,
		Metadata: models.RecordMetadata{
			DocumentID: docID,
			Content:    content,
			Namespace:  namespace,
		},
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)

	orthogonal := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	assert.InDelta(t, 0.0, orthogonal, 1e-9)

	opposite := CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	assert.InDelta(t, -1.0, opposite, 1e-9)

	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestLocalStoreSearchByVectorThreshold(t *testing.T) {
	s := NewLocalStore(2)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	require.NoError(t, s.Store(ctx, record("r1", "d1", "aligned", "", []float32{1, 0})))
	require.NoError(t, s.Store(ctx, record("r2", "d1", "orthogonal", "", []float32{0, 1})))

	results, err := s.SearchByVector(ctx, []float32{1, 0}, "", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "r1", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestLocalStoreDimensionMismatch(t *testing.T) {
	s := NewLocalStore(4)
	ctx := context.Background()

	err := s.Store(ctx, record("r1", "d1", "short vector", "", []float32{1, 2}))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = s.SearchByVector(ctx, []float32{1, 2}, "", 10, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLocalStoreUpsertKeepsCountStable(t *testing.T) {
	s := NewLocalStore(2)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, record("r1", "d1", "first version", "", []float32{1, 0})))
	require.NoError(t, s.Store(ctx, record("r1", "d1", "second version", "", []float32{0, 1})))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RecordCount)

	rec, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "second version", rec.Metadata.Content)
}

func TestLocalStoreDeleteByDocumentCascades(t *testing.T) {
	s := NewLocalStore(2)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, record("d1-chunk-0", "d1", "one", "", []float32{1, 0})))
	require.NoError(t, s.Store(ctx, record("d1-chunk-1", "d1", "two", "", []float32{0, 1})))
	require.NoError(t, s.Store(ctx, record("d2-chunk-0", "d2", "three", "", []float32{1, 1})))

	require.NoError(t, s.DeleteByDocument(ctx, "d1"))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RecordCount)

	_, err = s.Get(ctx, "d1-chunk-0")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "d2-chunk-0")
	assert.NoError(t, err)
}

func TestLocalStoreNamespaceIsolation(t *testing.T) {
	s := NewLocalStore(2)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, record("a1", "d1", "alpha", "ns-a", []float32{1, 0})))
	require.NoError(t, s.Store(ctx, record("b1", "d2", "beta", "ns-b", []float32{1, 0})))

	results, err := s.SearchByVector(ctx, []float32{1, 0}, "ns-a", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)

	// Empty namespace searches everything.
	all, err := s.SearchByVector(ctx, []float32{1, 0}, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLocalStoreTextSearch(t *testing.T) {
	s := NewLocalStore(2)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, record("r1", "d1",
		"Chargeback disputes require evidence within ninety days.", "", []float32{1, 0})))
	require.NoError(t, s.Store(ctx, record("r2", "d2",
		"Terminal provisioning guide.", "", []float32{0, 1})))

	results, err := s.Search(ctx, "chargeback", "", 10, 0.3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "r1", results[0].ID)
	assert.GreaterOrEqual(t, results[0].Score, 0.5)

	none, err := s.Search(ctx, "nonexistent topic", "", 10, 0.3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLocalStoreStoreBatch(t *testing.T) {
	s := NewLocalStore(2)
	ctx := context.Background()

	records := []models.VectorRecord{
		record("r1", "d1", "one", "", []float32{1, 0}),
		record("r2", "d1", "two", "", []float32{0, 1}),
	}
	stored, err := s.StoreBatch(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
}
