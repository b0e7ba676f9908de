package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDataRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("merchant settlement batch record ", 50))

	for _, alg := range []CompressionAlgorithm{CompressionNone, CompressionGzip, CompressionZlib, CompressionBrotli} {
		compressed, err := CompressData(payload, alg)
		require.NoError(t, err, "compress with %s", alg)

		restored, err := DecompressData(compressed, alg)
		require.NoError(t, err, "decompress with %s", alg)
		assert.Equal(t, payload, restored, "round trip with %s", alg)
	}
}

func TestCompressDataShrinksRepetitiveText(t *testing.T) {
	payload := []byte(strings.Repeat("interchange ", 200))

	compressed, err := CompressData(payload, CompressionBrotli)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload))
}

func TestCompressDataUnknownAlgorithm(t *testing.T) {
	_, err := CompressData([]byte("data"), CompressionAlgorithm("lz4"))
	assert.Error(t, err)

	_, err = DecompressData([]byte("data"), CompressionAlgorithm("lz4"))
	assert.Error(t, err)
}

func TestGetBestCompression(t *testing.T) {
	assert.Equal(t, CompressionNone, GetBestCompression([]byte("tiny")))
	assert.Equal(t, CompressionBrotli, GetBestCompression([]byte(strings.Repeat("x", 600))))
}

func TestCompressTextSmallPayloadSkipsCompression(t *testing.T) {
	data, alg, err := CompressText("small")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, alg)
	assert.Equal(t, []byte("small"), data)
}

func TestCompressTextRoundTrip(t *testing.T) {
	original := strings.Repeat("chargeback evidence packet ", 40)

	compressed, alg, err := CompressText(original)
	require.NoError(t, err)
	assert.Equal(t, CompressionBrotli, alg)

	restored, err := DecompressText(compressed, alg)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestEmptyInputPassesThrough(t *testing.T) {
	out, err := CompressData(nil, CompressionBrotli)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = DecompressData(nil, CompressionGzip)
	require.NoError(t, err)
	assert.Empty(t, out)
}
