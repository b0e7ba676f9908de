package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchant-docs-rag/models"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestContentCipherRoundTrip(t *testing.T) {
	c, err := NewContentCipher(testKey)
	require.NoError(t, err)

	content, iv, err := c.Encrypt("merchant processing agreement")
	require.NoError(t, err)
	assert.NotEmpty(t, content)
	assert.NotEmpty(t, iv)
	assert.NotEqual(t, "merchant processing agreement", content)

	plain, err := c.Decrypt(content, iv)
	require.NoError(t, err)
	assert.Equal(t, "merchant processing agreement", plain)
}

func TestContentCipherRejectsBadKey(t *testing.T) {
	_, err := NewContentCipher("too-short")
	assert.Error(t, err)
}

func TestContentCipherUniqueIVs(t *testing.T) {
	c, err := NewContentCipher(testKey)
	require.NoError(t, err)

	_, iv1, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	_, iv2, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, iv1, iv2)
}

func TestContentCipherTamperedContentFails(t *testing.T) {
	c, err := NewContentCipher(testKey)
	require.NoError(t, err)

	content, iv, err := c.Encrypt("secret")
	require.NoError(t, err)

	_, err = c.Decrypt(content, "bm90LWEtcmVhbC1pdg==")
	assert.ErrorIs(t, err, ErrDecryptionFailure)

	_, err = c.Decrypt("corrupted!!", iv)
	assert.ErrorIs(t, err, ErrDecryptionFailure)
}

func TestEncryptedStoreSealsBeforeBackend(t *testing.T) {
	ctx := context.Background()
	inner := NewLocalStore(2)
	cipher, err := NewContentCipher(testKey)
	require.NoError(t, err)
	store := NewEncryptedStore(inner, cipher)

	require.NoError(t, store.Store(ctx, record("r1", "d1", "sensitive text", "", []float32{1, 0})))

	// The backend must never see plaintext.
	raw, err := inner.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, raw.Metadata.Content)
	assert.NotEmpty(t, raw.Metadata.EncryptedContent)
	assert.NotEmpty(t, raw.Metadata.IV)

	// Reads through the decorator return plaintext.
	rec, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "sensitive text", rec.Metadata.Content)
	assert.Empty(t, rec.Metadata.EncryptedContent)
}

func TestEncryptedStoreSearchDecrypts(t *testing.T) {
	ctx := context.Background()
	inner := NewLocalStore(2)
	cipher, err := NewContentCipher(testKey)
	require.NoError(t, err)
	store := NewEncryptedStore(inner, cipher)

	require.NoError(t, store.Store(ctx, record("r1", "d1", "encrypted chunk body", "", []float32{1, 0})))

	results, err := store.SearchByVector(ctx, []float32{1, 0}, "", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "encrypted chunk body", results[0].Content)
	assert.Equal(t, "encrypted chunk body", results[0].Metadata.Content)
}

func TestEncryptedStoreSkipsUndecryptableRecords(t *testing.T) {
	ctx := context.Background()
	inner := NewLocalStore(2)
	cipher, err := NewContentCipher(testKey)
	require.NoError(t, err)
	store := NewEncryptedStore(inner, cipher)

	require.NoError(t, store.Store(ctx, record("good", "d1", "readable", "", []float32{1, 0})))

	// A record written with a different key is unreadable.
	otherCipher, err := NewContentCipher("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	sealed, iv, err := otherCipher.Encrypt("unreadable")
	require.NoError(t, err)
	require.NoError(t, inner.Store(ctx, models.VectorRecord{
		ID:     "bad",
		Values: []float32{1, 0},
		Metadata: models.RecordMetadata{
			DocumentID:       "d2",
			EncryptedContent: sealed,
			IV:               iv,
		},
	}))

	results, err := store.SearchByVector(ctx, []float32{1, 0}, "", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "good", results[0].ID)
}

func TestEncryptedStoreTextSearchIsEmpty(t *testing.T) {
	ctx := context.Background()
	inner := NewLocalStore(2)
	cipher, err := NewContentCipher(testKey)
	require.NoError(t, err)
	store := NewEncryptedStore(inner, cipher)

	require.NoError(t, store.Store(ctx, record("r1", "d1", "settlement timing details", "", []float32{1, 0})))

	// The backend holds cipher text, so keyword matching would scan
	// gibberish; the decorator reports no matches instead.
	results, err := store.Search(ctx, "settlement", "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
