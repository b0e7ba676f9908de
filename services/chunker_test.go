package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/models"
)

func testChunker(maxSize, minSize int) *Chunker {
	return NewChunker(&config.Config{
		MaxChunkSize:  maxSize,
		MinChunkSize:  minSize,
		MerchantTerms: []string{"interchange", "chargeback", "terminal", "settlement"},
	})
}

func TestChunkTextSplitsOnSentenceBoundaries(t *testing.T) {
	c := testChunker(60, 10)

	text := "First sentence about fees. Second sentence about rates. Third sentence here. Fourth one now."
	chunks := c.ChunkText("doc-1", text)

	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		// No chunk ends mid-sentence.
		assert.True(t, strings.HasSuffix(chunk.Content, "."), "chunk %q should end at a sentence boundary", chunk.Content)
	}
	// 60-char cap means roughly two sentences per chunk.
	assert.Len(t, chunks, 2)
}

func TestChunkTextIndicesAreContiguous(t *testing.T) {
	c := testChunker(50, 10)

	text := strings.Repeat("A short sentence. ", 20)
	chunks := c.ChunkText("doc-2", text)

	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, fmt.Sprintf("doc-2-chunk-%d", i), chunk.ID)
		assert.Equal(t, "doc-2", chunk.DocumentID)
	}
}

func TestChunkTextOversizedSentenceStaysWhole(t *testing.T) {
	c := testChunker(50, 10)

	long := strings.Repeat("word ", 40) + "end"
	chunks := c.ChunkText("doc-3", long+". Short one.")

	require.Len(t, chunks, 2)
	assert.Greater(t, len(chunks[0].Content), 50, "oversized sentence must not be cut")
	assert.Equal(t, "Short one.", chunks[1].Content)
}

func TestChunkTextEmptyInput(t *testing.T) {
	c := testChunker(300, 100)

	assert.Nil(t, c.ChunkText("doc-4", ""))
	assert.Nil(t, c.ChunkText("doc-4", "   \n\t  "))
}

func TestChunkTextPreservesAllContent(t *testing.T) {
	c := testChunker(80, 10)

	text := "Interchange fees vary by card type. Chargebacks cost merchants money. Terminals need PCI compliance. Settlement happens daily."
	chunks := c.ChunkText("doc-5", text)

	var rebuilt strings.Builder
	for _, chunk := range chunks {
		rebuilt.WriteString(chunk.Content)
		rebuilt.WriteString(" ")
	}
	for _, word := range strings.Fields(text) {
		assert.Contains(t, rebuilt.String(), strings.Trim(word, ".!?"))
	}
}

func TestScoreChunkGenericPhraseCapsAtLow(t *testing.T) {
	c := testChunker(300, 100)

	content := "This PDF document contains interchange and chargeback and settlement details with rates of 2.9% for every terminal in the fleet."
	require.GreaterOrEqual(t, len(content), 100)

	quality, keywords := c.scoreChunk(content)
	assert.Equal(t, models.QualityLow, quality)
	// Keywords are still recorded even when quality is capped.
	assert.Contains(t, keywords, "interchange")
}

func TestScoreChunkHighQuality(t *testing.T) {
	c := testChunker(300, 100)

	content := "Interchange rates for card-present transactions settle at 1.8% plus $0.10 per item. Chargeback fees apply after settlement and each terminal batch closes daily."
	require.GreaterOrEqual(t, len(content), 100)

	quality, keywords := c.scoreChunk(content)
	assert.Equal(t, models.QualityHigh, quality)
	assert.GreaterOrEqual(t, len(keywords), 3)
}

func TestScoreChunkShortContentPenalized(t *testing.T) {
	c := testChunker(300, 100)

	quality, _ := c.scoreChunk("Too short.")
	assert.Equal(t, models.QualityLow, quality)
}

func TestScoreChunkIsDeterministic(t *testing.T) {
	c := testChunker(300, 100)

	content := "Settlement batches close at midnight and interchange applies to every card not present transaction in the merchant account ledger."
	q1, k1 := c.scoreChunk(content)
	q2, k2 := c.scoreChunk(content)
	assert.Equal(t, q1, q2)
	assert.Equal(t, k1, k2)
}
