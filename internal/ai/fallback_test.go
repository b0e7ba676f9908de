package ai

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackEmbedderIsDeterministic(t *testing.T) {
	f := NewFallbackEmbedder(128)
	ctx := context.Background()

	v1, err := f.Embed(ctx, "merchant services pricing")
	require.NoError(t, err)
	v2, err := f.Embed(ctx, "merchant services pricing")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestFallbackEmbedderDimension(t *testing.T) {
	f := NewFallbackEmbedder(64)
	vec, err := f.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
	assert.Equal(t, 64, f.Dimension())

	// Zero dimension falls back to the default.
	d := NewFallbackEmbedder(0)
	assert.Equal(t, 384, d.Dimension())
}

func TestFallbackEmbedderIsNormalized(t *testing.T) {
	f := NewFallbackEmbedder(128)
	vec, err := f.Embed(context.Background(), "normalize me please")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestFallbackEmbedderEmptyText(t *testing.T) {
	f := NewFallbackEmbedder(32)
	vec, err := f.Embed(context.Background(), "   ")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestFallbackEmbedderDistinguishesTexts(t *testing.T) {
	f := NewFallbackEmbedder(128)
	ctx := context.Background()

	a, err := f.Embed(ctx, "interchange fee schedule")
	require.NoError(t, err)
	b, err := f.Embed(ctx, "terminal firmware manual")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

// erroringEmbedder always fails, standing in for a provider outage.
type erroringEmbedder struct{ dim int }

func (e *erroringEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}
func (e *erroringEmbedder) Dimension() int { return e.dim }
func (e *erroringEmbedder) Name() string   { return "erroring" }

func TestResilientEmbedderFallsBack(t *testing.T) {
	r := &ResilientEmbedder{
		primary:  &erroringEmbedder{dim: 32},
		fallback: NewFallbackEmbedder(32),
	}

	vec, err := r.Embed(context.Background(), "degraded mode text")
	require.NoError(t, err)
	assert.Len(t, vec, 32)
}

func TestBatchEmbedPreservesOrderAndIsolatesErrors(t *testing.T) {
	f := NewFallbackEmbedder(32)
	texts := []string{"first", "second", "third"}

	results := BatchEmbed(context.Background(), f, texts)
	require.Len(t, results, 3)

	for i, res := range results {
		require.NoError(t, res.Err)
		expected, _ := f.Embed(context.Background(), texts[i])
		assert.Equal(t, expected, res.Vector, "result %d out of order", i)
	}
}

func TestBatchEmbedCancelledContext(t *testing.T) {
	f := NewFallbackEmbedder(32)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := BatchEmbed(ctx, f, []string{"a", "b"})
	require.Len(t, results, 2)
	// With the semaphore free, items may still complete; what matters is
	// every slot is filled with either a vector or an error.
	for _, res := range results {
		if res.Err == nil {
			assert.Len(t, res.Vector, 32)
		}
	}
}
